package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/session"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

// AuthenticatorFactory builds the authenticator for one challenge request.
// passcode is whatever the client sent, remote authenticators ignore it.
type AuthenticatorFactory func(passcode string) gate.Authenticator

type AuthHandler struct {
	authenticator    AuthenticatorFactory
	flag             gate.Flag
	sessionTTL       time.Duration
	tokens           *session.Tokens
	challengeTimeout time.Duration
	logger           *zap.Logger
}

type ChallengeInput struct {
	Passcode string `json:"passcode"`
}

func NewAuthHandler(
	authenticator AuthenticatorFactory,
	flag gate.Flag,
	sessionTTL time.Duration,
	tokens *session.Tokens,
	challengeTimeout time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authenticator:    authenticator,
		flag:             flag,
		sessionTTL:       sessionTTL,
		tokens:           tokens,
		challengeTimeout: challengeTimeout,
		logger:           logger,
	}
}

func (h *AuthHandler) Challenge(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.challengeTimeout)
	defer cancel()

	input := new(ChallengeInput)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(input); err != nil {
			mylogger.Warn(ctx, h.logger, "body parsing error in challenge", zap.Error(err))

			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Cannot parse JSON",
			})
		}
	}

	g := gate.New(h.authenticator(input.Passcode), h.flag, h.sessionTTL, h.logger)

	state, err := g.Authenticate(ctx)
	if err != nil {
		msg := gate.MsgFailed
		if errors.Is(err, gate.ErrBiometricUnavailable) {
			msg = gate.MsgUnavailable
		}

		mylogger.Warn(ctx, h.logger, "challenge failed", zap.String("state", string(state)), zap.Error(err))

		return c.Status(mapErrorStatus(err)).JSON(fiber.Map{
			"state": state,
			"error": msg,
		})
	}

	token, expiresAt, err := h.tokens.Issue()
	if err != nil {
		mylogger.Error(ctx, h.logger, "token issue failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	mylogger.Info(ctx, h.logger, "challenge succeeded")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"state":      state,
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (h *AuthHandler) Status(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	ok, err := h.flag.Authenticated(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"authenticated": ok})
}
