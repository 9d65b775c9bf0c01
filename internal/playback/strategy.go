package playback

import (
	"errors"
	"io"
	"os/exec"

	"go.uber.org/zap"

	"github.com/visiolive/spectator/config"
)

// Strategy is one way of turning a stream URL into running playback. Two
// variants exist: native (delegate to an external media process) and
// library-mediated (in-process playlist/segment management). Both expose
// identical semantics so the selection stays invisible to the reconciler.
type Strategy interface {
	// Attach begins loading the stream. It returns quickly; OnReady fires
	// once playback has started and OnFatal fires on an unrecoverable
	// error. An immediate error is equivalent to a fatal one.
	Attach(url string) error

	// Stop releases all resources. Safe to call more than once; after Stop
	// no further callbacks fire.
	Stop()

	// SeekToLive resumes loading at the live edge. A no-op on strategies
	// whose engine already tracks the edge.
	SeekToLive() error
}

// Callbacks are the strategy-to-engine event hooks, set at construction.
type Callbacks struct {
	OnReady func()
	OnFatal func(err error)
}

// StrategyFactory builds a fresh strategy instance. Recovery from a fatal
// error constructs a new instance with identical configuration, so the
// factory must be reusable.
type StrategyFactory func(cb Callbacks) Strategy

// ErrNoStrategy is returned when no playback strategy can run on this host.
var ErrNoStrategy = errors.New("no playback strategy available")

// SelectFactory picks a strategy factory from configuration. "native"
// requires the configured player binary on PATH; "auto" prefers native and
// falls back to the library-mediated engine, mirroring the capability
// check a browser client does between a native HLS media element and a
// software demuxer.
func SelectFactory(cfg config.PlaybackConfig, sink MediaSink, logger *zap.Logger) (StrategyFactory, error) {
	nativeAvailable := false
	if cfg.PlayerCommand != "" {
		if _, err := exec.LookPath(cfg.PlayerCommand); err == nil {
			nativeAvailable = true
		}
	}

	switch cfg.Strategy {
	case "native":
		if !nativeAvailable {
			return nil, ErrNoStrategy
		}
	case "library":
		nativeAvailable = false
	case "auto", "":
	default:
		return nil, errors.New("unknown playback strategy: " + cfg.Strategy)
	}

	if nativeAvailable {
		logger.Info("native playback selected", zap.String("command", cfg.PlayerCommand))
		return func(cb Callbacks) Strategy {
			return NewNativeStrategy(cfg.PlayerCommand, cfg.PlayerArgs, cb, logger)
		}, nil
	}

	logger.Info("library-mediated playback selected")
	return func(cb Callbacks) Strategy {
		return NewLibraryStrategy(nil, sink, cfg.FailureTolerance, cb, logger)
	}, nil
}

// MediaSink is the presentation surface the library-mediated strategy
// feeds decoded-segment bytes into. At most one non-released strategy may
// write to a given sink at any time.
type MediaSink interface {
	io.Writer
}

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }

// DiscardSink returns a sink that drops all media bytes. Useful when the
// host renders elsewhere or in tests.
func DiscardSink() MediaSink { return discardSink{} }
