package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

var (
	ErrBiometricUnavailable = errors.New("biometric authentication is not available")
	ErrChallengeFailed      = errors.New("identity could not be verified")
)

const (
	MsgUnavailable = "Biometric authentication is not available on this device."
	MsgFailed      = "Unable to verify identity."
	MsgRetry       = "Authentication failed, please try again."
)

// ChallengePrompt is what the authenticator shows while it asks.
type ChallengePrompt struct {
	Message       string `json:"prompt_message"`
	FallbackLabel string `json:"fallback_label"`
}

var DefaultPrompt = ChallengePrompt{
	Message:       "Please authenticate to continue",
	FallbackLabel: "Use passcode",
}

// Authenticator is the device side of the gate.
type Authenticator interface {
	HardwareAvailable(ctx context.Context) (bool, error)
	Enrolled(ctx context.Context) (bool, error)
	Challenge(ctx context.Context, prompt ChallengePrompt) (bool, error)
}

// Flag remembers a successful challenge.
type Flag interface {
	SetAuthenticated(ctx context.Context, ttl time.Duration) error
	Authenticated(ctx context.Context) (bool, error)
}

type State string

const (
	StateChecking      State = "checking"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
	StateUnavailable   State = "unavailable"
)

type Gate struct {
	auth   Authenticator
	flag   Flag
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New builds a gate in the Checking state. ttl bounds how long the
// remembered flag lets a later launch skip the challenge.
func New(auth Authenticator, flag Flag, ttl time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		auth:   auth,
		flag:   flag,
		ttl:    ttl,
		logger: logger,
		state:  StateChecking,
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Remembered reports whether an earlier challenge is still on record.
func (g *Gate) Remembered(ctx context.Context) (bool, error) {
	ok, err := g.flag.Authenticated(ctx)
	if err != nil {
		return false, err
	}

	if ok {
		g.setState(StateAuthenticated)
	}

	return ok, nil
}

// Authenticate checks the device and runs one challenge. Anything but a
// clear success leaves the gate Failed with ErrChallengeFailed, and a
// missing or unenrolled device leaves it Unavailable.
func (g *Gate) Authenticate(ctx context.Context) (State, error) {
	g.setState(StateChecking)

	available, err := g.auth.HardwareAvailable(ctx)
	if err != nil {
		mylogger.Warn(ctx, g.logger, "Hardware check failed", zap.Error(err))
	}

	enrolled := false
	if err == nil && available {
		enrolled, err = g.auth.Enrolled(ctx)
		if err != nil {
			mylogger.Warn(ctx, g.logger, "Enrollment check failed", zap.Error(err))
		}
	}

	if !available || !enrolled {
		g.setState(StateUnavailable)
		return StateUnavailable, ErrBiometricUnavailable
	}

	ok, err := g.auth.Challenge(ctx, DefaultPrompt)
	if err != nil {
		mylogger.Warn(ctx, g.logger, "Challenge error", zap.Error(err))
	}

	if err != nil || !ok {
		g.setState(StateFailed)
		return StateFailed, ErrChallengeFailed
	}

	// The flag only spares the next prompt, a failed write does not undo
	// the challenge that just passed.
	if err := g.flag.SetAuthenticated(ctx, g.ttl); err != nil {
		mylogger.Warn(ctx, g.logger, "Could not remember authentication", zap.Error(err))
	}

	mylogger.Info(ctx, g.logger, "Authenticated")

	g.setState(StateAuthenticated)
	return StateAuthenticated, nil
}

// Retry runs the challenge again. It is a no-op once authenticated.
func (g *Gate) Retry(ctx context.Context) (State, error) {
	if g.State() == StateAuthenticated {
		return StateAuthenticated, nil
	}

	return g.Authenticate(ctx)
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = s
}
