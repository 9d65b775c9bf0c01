package playback

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrStreamUnavailable is returned when every probe attempt failed.
var ErrStreamUnavailable = errors.New("stream unavailable")

// Prober checks whether a stream manifest is actually published before
// playback is attempted. The server may announce a session before the
// encoder has pushed the first segment; attaching against a 404 turns a
// short wait into a user-visible failure.
type Prober struct {
	http   *http.Client
	logger *zap.Logger

	// onAttempt, when set, is invoked once per probe attempt (metrics hook).
	onAttempt func()
}

// NewProber creates a prober with the given HTTP client; a nil client uses
// a default with a per-request timeout.
func NewProber(client *http.Client, logger *zap.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Prober{http: client, logger: logger}
}

// SetAttemptHook registers a callback fired once per probe attempt.
func (p *Prober) SetAttemptHook(fn func()) {
	p.onAttempt = fn
}

// Probe issues HEAD requests against url until one succeeds or maxAttempts
// are exhausted, waiting interval between attempts. Cancelling ctx aborts
// the probe; a cancelled probe must never trigger playback, so the caller
// gets ctx.Err() back and can drop the result.
func (p *Prober) Probe(ctx context.Context, url string, maxAttempts int, interval time.Duration) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.onAttempt != nil {
			p.onAttempt()
		}

		ok, err := p.probeOnce(ctx, url)
		if ok {
			p.logger.Debug("stream available",
				zap.String("url", url),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		p.logger.Debug("stream not yet available",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return ErrStreamUnavailable
}

func (p *Prober) probeOnce(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 400, nil
}
