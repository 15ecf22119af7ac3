package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sakashimaa/vani-inventory/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type deviceStatus struct {
	HardwareAvailable bool `json:"hardware_available"`
	Enrolled          bool `json:"enrolled"`
}

type challengeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// errChallengeAbandoned marks a challenge whose caller stopped waiting. The
// bridge was still answering, so the breaker does not count it.
var errChallengeAbandoned = errors.New("challenge abandoned")

// RemoteAuthenticator talks to a device bridge that owns the biometric
// sensor: GET /status and POST /challenge. Calls go through a circuit
// breaker so a dead bridge fails fast.
type RemoteAuthenticator struct {
	baseURL          string
	client           *http.Client
	cb               *gobreaker.CircuitBreaker
	statusTimeout    time.Duration
	challengeTimeout time.Duration
}

// NewRemoteAuthenticator bounds status calls by statusTimeout and challenges
// by challengeTimeout, which has to leave a person time to touch the sensor.
func NewRemoteAuthenticator(
	baseURL string,
	statusTimeout time.Duration,
	challengeTimeout time.Duration,
	logger *zap.Logger,
) *RemoteAuthenticator {
	cb := utils.NewBreaker("BiometricBridge", logger, func(s *gobreaker.Settings) {
		s.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, errChallengeAbandoned)
		}
	})

	return &RemoteAuthenticator{
		baseURL:          strings.TrimRight(baseURL, "/"),
		client:           &http.Client{},
		cb:               cb,
		statusTimeout:    statusTimeout,
		challengeTimeout: challengeTimeout,
	}
}

func (a *RemoteAuthenticator) HardwareAvailable(ctx context.Context) (bool, error) {
	status, err := a.status(ctx)
	if err != nil {
		return false, err
	}

	return status.HardwareAvailable, nil
}

func (a *RemoteAuthenticator) Enrolled(ctx context.Context) (bool, error) {
	status, err := a.status(ctx)
	if err != nil {
		return false, err
	}

	return status.Enrolled, nil
}

func (a *RemoteAuthenticator) Challenge(ctx context.Context, prompt ChallengePrompt) (bool, error) {
	body, err := json.Marshal(prompt)
	if err != nil {
		return false, err
	}

	res, err := utils.ExecuteWithBreaker(a.cb, func() (challengeResult, error) {
		var out challengeResult
		err := a.do(ctx, a.challengeTimeout, http.MethodPost, "/challenge", body, &out)
		if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return out, fmt.Errorf("%w: %w", errChallengeAbandoned, err)
		}
		return out, err
	})
	if err != nil {
		return false, err
	}

	if !res.Success && res.Error != "" {
		return false, fmt.Errorf("bridge: %s", res.Error)
	}

	return res.Success, nil
}

func (a *RemoteAuthenticator) status(ctx context.Context) (deviceStatus, error) {
	return utils.ExecuteWithBreaker(a.cb, func() (deviceStatus, error) {
		var out deviceStatus
		err := a.do(ctx, a.statusTimeout, http.MethodGet, "/status", nil, &out)
		return out, err
	})
}

func (a *RemoteAuthenticator) do(
	ctx context.Context,
	timeout time.Duration,
	method, path string,
	body []byte,
	out any,
) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling bridge %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge %s returned %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding bridge %s response: %w", path, err)
	}

	return nil
}
