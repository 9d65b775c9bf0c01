// Package playback owns stream acquisition for one presentation surface:
// availability probing, the attach/play/recover state machine, and the
// native-vs-library strategy dispatch.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the playback engine state for one presentation surface.
type State string

const (
	StateIdle       State = "idle"
	StateProbing    State = "probing"
	StateAttaching  State = "attaching"
	StatePlaying    State = "playing"
	StateRecovering State = "recovering"
	StateStopped    State = "stopped"
)

// RestartPolicy decides whether a fatal error leads to another restart.
// restarts is the count of restarts already performed for the current URL.
type RestartPolicy func(restarts int) bool

// RestartAlways is the live-stream default: transient failures (segment
// gaps, manifest hiccups) are common and self-healing, so the engine keeps
// retrying and leaves a permanent outage to the operator.
func RestartAlways(int) bool { return true }

// RestartUpTo bounds restarts at n. Used by tests and non-live sources.
func RestartUpTo(n int) RestartPolicy {
	return func(restarts int) bool { return restarts <= n }
}

// Notifier receives short user-facing status text.
type Notifier func(notice string)

// Options configure an Engine.
type Options struct {
	Name          string // surface name for logs, e.g. "primary", "spectator"
	ProbeAttempts int
	ProbeInterval time.Duration
	Policy        RestartPolicy
	Notify        Notifier
	OnRestart     func()      // metrics hook, fired once per recovery restart
	OnState       func(State) // metrics hook, fired on every transition; must not call back into the engine
}

// Engine drives one presentation surface through the playback state
// machine. Every Start bumps an epoch; async completions (probe results,
// strategy callbacks) carry the epoch they were issued under and are
// dropped if a later Start or Stop superseded them.
type Engine struct {
	prober  *Prober
	factory StrategyFactory
	opts    Options
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	url         string
	epoch       uint64
	restarts    int
	strategy    Strategy
	cancelProbe context.CancelFunc
}

// NewEngine creates a playback engine for one surface.
func NewEngine(prober *Prober, factory StrategyFactory, opts Options, logger *zap.Logger) *Engine {
	if opts.ProbeAttempts < 1 {
		opts.ProbeAttempts = 20
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 2 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = RestartAlways
	}
	if opts.Name == "" {
		opts.Name = "primary"
	}
	return &Engine{
		prober:  prober,
		factory: factory,
		opts:    opts,
		logger:  logger.With(zap.String("surface", opts.Name)),
		state:   StateIdle,
	}
}

// Start begins acquisition of the stream at url, releasing any prior
// playback first. Insecure locators are upgraded to https before probing.
func (e *Engine) Start(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restarts = 0
	e.startLocked(forceHTTPS(url))
}

func (e *Engine) startLocked(url string) {
	e.releaseLocked()
	e.epoch++
	epoch := e.epoch
	e.url = url
	e.setStateLocked(StateProbing)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelProbe = cancel

	e.logger.Info("probing stream", zap.String("url", url))
	go func() {
		err := e.prober.Probe(ctx, url, e.opts.ProbeAttempts, e.opts.ProbeInterval)
		e.probeDone(epoch, url, err)
	}()
}

func (e *Engine) probeDone(epoch uint64, url string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || e.state != StateProbing {
		// superseded by a later Start or Stop
		return
	}
	e.cancelProbe = nil

	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		e.logger.Warn("probe exhausted", zap.String("url", url), zap.Error(err))
		e.setStateLocked(StateIdle)
		e.notify("stream unavailable")
		return
	}

	e.setStateLocked(StateAttaching)
	strat := e.factory(Callbacks{
		OnReady: func() { e.strategyReady(epoch) },
		OnFatal: func(ferr error) { e.strategyFatal(epoch, ferr) },
	})
	e.strategy = strat

	if err := strat.Attach(url); err != nil {
		e.recoverLocked(err)
	}
}

func (e *Engine) strategyReady(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || e.state != StateAttaching {
		return
	}
	e.setStateLocked(StatePlaying)
	e.logger.Info("playback started", zap.String("url", e.url))
	e.notify("")
}

func (e *Engine) strategyFatal(epoch uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}
	if e.state != StateAttaching && e.state != StatePlaying {
		return
	}
	e.recoverLocked(err)
}

// recoverLocked performs the full teardown-and-restart for a fatal error:
// the prior strategy instance is released before a fresh one can attach,
// so two engine instances never share the surface.
func (e *Engine) recoverLocked(err error) {
	e.setStateLocked(StateRecovering)
	e.restarts++
	e.logger.Warn("recovering from fatal playback error",
		zap.Int("restart", e.restarts),
		zap.Error(err),
	)
	if e.opts.OnRestart != nil {
		e.opts.OnRestart()
	}

	url := e.url
	if !e.opts.Policy(e.restarts) {
		e.releaseLocked()
		e.setStateLocked(StateIdle)
		e.notify("stream unavailable")
		return
	}
	e.startLocked(url)
}

// Stop releases all playback resources. Valid from any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++ // invalidate in-flight completions
	e.releaseLocked()
	e.setStateLocked(StateStopped)
	e.logger.Info("playback stopped")
}

// SeekToLive resumes playback at the live edge when the active strategy
// supports it.
func (e *Engine) SeekToLive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strategy == nil || e.state != StatePlaying {
		return errors.New("not playing")
	}
	return e.strategy.SeekToLive()
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// URL returns the locator of the current or most recent stream.
func (e *Engine) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	if e.opts.OnState != nil {
		e.opts.OnState(s)
	}
}

func (e *Engine) releaseLocked() {
	if e.cancelProbe != nil {
		e.cancelProbe()
		e.cancelProbe = nil
	}
	if e.strategy != nil {
		e.strategy.Stop()
		e.strategy = nil
	}
}

func (e *Engine) notify(notice string) {
	if e.opts.Notify != nil {
		e.opts.Notify(notice)
	}
}

func forceHTTPS(url string) string {
	if strings.HasPrefix(url, "http://") {
		return "https://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
