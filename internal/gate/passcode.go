package gate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasscodeSource asks the user for the passcode.
type PasscodeSource func(ctx context.Context, prompt ChallengePrompt) (string, error)

// StaticPasscode answers every challenge with passcode, for callers that
// already collected it.
func StaticPasscode(passcode string) PasscodeSource {
	return func(context.Context, ChallengePrompt) (string, error) {
		return passcode, nil
	}
}

// PasscodeAuthenticator stands in for device biometrics with a bcrypt
// hashed shop passcode. No hash configured means no hardware, a hash that
// is not bcrypt means nothing is enrolled.
type PasscodeAuthenticator struct {
	hash   []byte
	source PasscodeSource
}

func NewPasscodeAuthenticator(hash string, source PasscodeSource) *PasscodeAuthenticator {
	return &PasscodeAuthenticator{hash: []byte(hash), source: source}
}

func (a *PasscodeAuthenticator) HardwareAvailable(context.Context) (bool, error) {
	return len(a.hash) > 0 && a.source != nil, nil
}

func (a *PasscodeAuthenticator) Enrolled(context.Context) (bool, error) {
	if _, err := bcrypt.Cost(a.hash); err != nil {
		return false, nil
	}

	return true, nil
}

func (a *PasscodeAuthenticator) Challenge(ctx context.Context, prompt ChallengePrompt) (bool, error) {
	passcode, err := a.source(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("error reading passcode: %w", err)
	}

	err = bcrypt.CompareHashAndPassword(a.hash, []byte(passcode))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}

		return false, fmt.Errorf("error comparing passcode: %w", err)
	}

	return true, nil
}

// HashPasscode produces the value for auth.passcode_hash.
func HashPasscode(passcode string) (string, error) {
	if passcode == "" {
		return "", fmt.Errorf("passcode is empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), 12)
	if err != nil {
		return "", fmt.Errorf("error hashing passcode: %w", err)
	}

	return string(hash), nil
}
