package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// liveSyncSegments is how many trailing segments the fetch loop starts
// behind the live edge, trading a little latency for startup stability.
const liveSyncSegments = 2

// LibraryStrategy is the software-demuxed playback path: it fetches and
// parses the media playlist itself, follows the live edge, and feeds
// segment bytes to the presentation surface. Used where no native HLS
// player is available.
type LibraryStrategy struct {
	http      *http.Client
	sink      MediaSink
	tolerance int
	cb        Callbacks
	logger    *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	seekLive atomic.Bool
}

// NewLibraryStrategy creates a library-mediated strategy writing segment
// bytes to sink. tolerance is the number of consecutive playlist or
// segment failures treated as transient before one becomes fatal.
func NewLibraryStrategy(client *http.Client, sink MediaSink, tolerance int, cb Callbacks, logger *zap.Logger) *LibraryStrategy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if sink == nil {
		sink = DiscardSink()
	}
	if tolerance < 1 {
		tolerance = 1
	}
	return &LibraryStrategy{http: client, sink: sink, tolerance: tolerance, cb: cb, logger: logger}
}

// Attach starts the playlist fetch loop for the URL.
func (s *LibraryStrategy) Attach(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.cancel != nil {
		return fmt.Errorf("library strategy already attached")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, url)
	return nil
}

// Stop tears the fetch loop down and suppresses further callbacks.
func (s *LibraryStrategy) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// SeekToLive makes the fetch loop skip its backlog and resume at the live
// edge on the next playlist refresh.
func (s *LibraryStrategy) SeekToLive() error {
	s.seekLive.Store(true)
	return nil
}

func (s *LibraryStrategy) run(ctx context.Context, url string) {
	ready := false
	failures := 0
	nextSeq := -1

	fail := func(err error) bool {
		failures++
		if failures >= s.tolerance {
			s.fatal(err)
			return true
		}
		s.logger.Warn("transient playback error",
			zap.Int("failures", failures),
			zap.Int("tolerance", s.tolerance),
			zap.Error(err),
		)
		return false
	}

	for {
		if ctx.Err() != nil {
			return
		}

		pl, err := s.fetchPlaylist(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if fail(err) {
				return
			}
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		failures = 0

		if !ready {
			ready = true
			nextSeq = liveEdge(pl)
			s.logger.Info("manifest parsed",
				zap.Int("media_sequence", pl.MediaSequence),
				zap.Int("segments", len(pl.Segments)),
			)
			if s.cb.OnReady != nil && !s.isStopped() {
				s.cb.OnReady()
			}
		}

		if s.seekLive.Swap(false) {
			nextSeq = liveEdge(pl)
			s.logger.Info("seeking to live edge", zap.Int("sequence", nextSeq))
		}

		for _, seg := range pl.Segments {
			if seg.Sequence < nextSeq {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if err := s.fetchSegment(ctx, url, seg); err != nil {
				if ctx.Err() != nil {
					return
				}
				if fail(err) {
					return
				}
				break
			}
			failures = 0
			nextSeq = seg.Sequence + 1
		}

		if pl.Ended {
			s.fatal(fmt.Errorf("live playlist ended"))
			return
		}

		if !sleep(ctx, refreshInterval(pl)) {
			return
		}
	}
}

func (s *LibraryStrategy) fetchPlaylist(ctx context.Context, url string) (*MediaPlaylist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch playlist: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	return ParseMediaPlaylist(string(body))
}

func (s *LibraryStrategy) fetchSegment(ctx context.Context, playlistURL string, seg Segment) error {
	segURL, err := ResolveSegmentURL(playlistURL, seg.URI)
	if err != nil {
		return fmt.Errorf("segment url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch segment %d: %w", seg.Sequence, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch segment %d: status %d", seg.Sequence, resp.StatusCode)
	}

	if _, err := io.Copy(s.sink, resp.Body); err != nil {
		return fmt.Errorf("write segment %d: %w", seg.Sequence, err)
	}
	return nil
}

func (s *LibraryStrategy) fatal(err error) {
	if s.isStopped() {
		return
	}
	s.logger.Warn("fatal playback error", zap.Error(err))
	if s.cb.OnFatal != nil {
		s.cb.OnFatal(err)
	}
}

func (s *LibraryStrategy) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// liveEdge returns the first sequence to load: liveSyncSegments behind the
// newest segment, clamped to the playlist start.
func liveEdge(pl *MediaPlaylist) int {
	if len(pl.Segments) == 0 {
		return pl.MediaSequence
	}
	edge := pl.Segments[len(pl.Segments)-1].Sequence - liveSyncSegments + 1
	if edge < pl.Segments[0].Sequence {
		edge = pl.Segments[0].Sequence
	}
	return edge
}

// refreshInterval is half the target duration, the usual live reload rate.
func refreshInterval(pl *MediaPlaylist) time.Duration {
	d := time.Duration(pl.TargetDuration) * time.Second / 2
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
