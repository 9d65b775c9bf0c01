package playback

import (
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// NativeStrategy delegates playback entirely to an external media process
// (ffplay, mpv, a set-top player). The host process owns demuxing,
// buffering and the live edge; this strategy only supervises the process.
type NativeStrategy struct {
	command string
	args    []string
	cb      Callbacks
	logger  *zap.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
}

// NewNativeStrategy creates a native strategy around the given player
// command. Extra args precede the stream URL on the command line.
func NewNativeStrategy(command string, args []string, cb Callbacks, logger *zap.Logger) *NativeStrategy {
	return &NativeStrategy{command: command, args: args, cb: cb, logger: logger}
}

// Attach launches the player process against the URL.
func (s *NativeStrategy) Attach(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.cmd != nil {
		return fmt.Errorf("native strategy already attached")
	}

	args := append(append([]string{}, s.args...), url)
	cmd := exec.Command(s.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	s.cmd = cmd
	s.logger.Info("player process started",
		zap.String("command", s.command),
		zap.Int("pid", cmd.Process.Pid),
	)

	go s.supervise(cmd)

	if s.cb.OnReady != nil {
		go s.cb.OnReady()
	}
	return nil
}

// supervise waits for the player process; an exit that was not requested
// via Stop is a fatal playback error.
func (s *NativeStrategy) supervise(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	stopped := s.stopped
	s.cmd = nil
	s.mu.Unlock()

	if stopped {
		return
	}
	if err == nil {
		err = fmt.Errorf("player process exited")
	}
	s.logger.Warn("player process died", zap.Error(err))
	if s.cb.OnFatal != nil {
		s.cb.OnFatal(err)
	}
}

// Stop kills the player process and suppresses further callbacks.
func (s *NativeStrategy) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// SeekToLive is a no-op: the native player tracks the live edge itself.
func (s *NativeStrategy) SeekToLive() error { return nil }
