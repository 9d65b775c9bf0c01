// Package main runs the live-broadcast viewer client: session polling,
// push channel, playback engines and the local control API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/visiolive/spectator/config"
	"github.com/visiolive/spectator/internal/api"
	"github.com/visiolive/spectator/internal/control"
	"github.com/visiolive/spectator/internal/metrics"
	"github.com/visiolive/spectator/internal/playback"
	"github.com/visiolive/spectator/internal/quiz"
	"github.com/visiolive/spectator/internal/reconciler"
	"github.com/visiolive/spectator/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	m := metrics.New()

	ledger, err := quiz.OpenLedger(cfg.Quiz.LedgerPath)
	if err != nil {
		logger.Fatal("ledger", zap.Error(err))
	}
	defer ledger.Close()

	socket := transport.NewSocket(transport.Options{
		URL:               cfg.Transport.URL,
		Token:             cfg.Server.Token,
		ReconnectAttempts: cfg.Transport.ReconnectAttempts,
		ReconnectDelay:    cfg.Transport.ReconnectDelay,
	}, logger)

	prober := playback.NewProber(nil, logger)
	prober.SetAttemptHook(m.IncProbeAttempts)

	sink, closeSink, err := newSink(cfg.Playback.SegmentDir)
	if err != nil {
		logger.Fatal("media sink", zap.Error(err))
	}
	defer closeSink()

	factory, err := playback.SelectFactory(cfg.Playback, sink, logger)
	if err != nil {
		logger.Fatal("playback strategy", zap.Error(err))
	}
	spectatorFactory, err := playback.SelectFactory(cfg.Playback, playback.DiscardSink(), logger)
	if err != nil {
		logger.Fatal("playback strategy", zap.Error(err))
	}

	engineOpts := playback.Options{
		Name:          "primary",
		ProbeAttempts: cfg.Playback.ProbeAttempts,
		ProbeInterval: cfg.Playback.ProbeInterval,
		OnRestart:     m.IncPlaybackRestarts,
		OnState: func(s playback.State) {
			m.SetPlaybackState("primary", string(s))
		},
		Notify: func(notice string) {
			if notice != "" {
				logger.Info("playback notice", zap.String("notice", notice))
			}
		},
	}
	engine := playback.NewEngine(prober, factory, engineOpts, logger)

	spectatorOpts := engineOpts
	spectatorOpts.Name = "spectator"
	spectatorOpts.OnRestart = nil
	spectatorOpts.OnState = func(s playback.State) {
		m.SetPlaybackState("spectator", string(s))
	}
	spectator := playback.NewEngine(prober, spectatorFactory, spectatorOpts, logger)

	var rec *reconciler.Reconciler
	machine := quiz.NewMachine(
		ledger,
		countingEmitter{socket: socket, metrics: m},
		func() (string, bool) { return rec.CurrentSession() },
		logger,
	)

	apiClient := api.NewClient(cfg.Server.BaseURL)
	rec = reconciler.New(apiClient, engine, spectator, machine, socket, socket.Events(), reconciler.Options{
		PollInterval:  cfg.Server.PollInterval,
		StreamBaseURL: cfg.Playback.StreamBaseURL,
		Hooks: reconciler.Hooks{
			OnPollError:    m.IncPollErrors,
			OnSessionState: m.SetSessionActive,
			OnPushEvent: func(event string) {
				m.IncPushEvents(event)
				switch event {
				case transport.EventConnect:
					m.SetConnected(true)
				case transport.EventDisconnect:
					m.SetConnected(false)
				}
			},
		},
	}, logger)

	handler := control.NewHandler(rec, machine, engine, logger)
	router := control.NewRouter(handler, m.Handler(), logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Control.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Control.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Control.WriteTimeout) * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		// A dead push channel is not fatal: polling keeps session state
		// eventually consistent.
		if err := socket.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("push channel gave up, polling only", zap.Error(err))
		}
	}()

	go func() {
		if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("reconciler stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("control api listening", zap.String("port", cfg.Control.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("control api", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	engine.Stop()
	spectator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control api shutdown", zap.Error(err))
	}
	logger.Info("viewer stopped")
}

// countingEmitter forwards quiz traffic to the socket and counts answers.
type countingEmitter struct {
	socket  *transport.Socket
	metrics *metrics.Metrics
}

func (e countingEmitter) EmitQuizResponse(sessionID, quizID string, selectedOption int) {
	e.metrics.IncQuizAnswers()
	e.socket.EmitQuizResponse(sessionID, quizID, selectedOption)
}

func (e countingEmitter) EmitRequestQuizResult(quizID string) {
	e.socket.EmitRequestQuizResult(quizID)
}

// newSink returns the media sink for the library-mediated strategy: a
// stream dump file under dir, or a discard sink when dir is empty.
func newSink(dir string) (playback.MediaSink, func(), error) {
	if dir == "" {
		return playback.DiscardSink(), func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "stream.ts"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := cfg.Build()
	return logger
}
