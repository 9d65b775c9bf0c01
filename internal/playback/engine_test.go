package playback

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStrategy struct {
	mu       sync.Mutex
	cb       Callbacks
	attached string
	stopped  bool
}

func (f *fakeStrategy) Attach(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = url
	return nil
}

func (f *fakeStrategy) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeStrategy) SeekToLive() error { return nil }

func (f *fakeStrategy) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeStrategy) ready() { f.cb.OnReady() }

func (f *fakeStrategy) fail(err error) { f.cb.OnFatal(err) }

// strategyRecorder builds fake strategies and records, for each new
// instance, whether the previous one had been released first.
type strategyRecorder struct {
	mu              sync.Mutex
	instances       []*fakeStrategy
	priorWasStopped []bool
}

func (r *strategyRecorder) factory(cb Callbacks) Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior := true
	if n := len(r.instances); n > 0 {
		prior = r.instances[n-1].stopped
	}
	s := &fakeStrategy{cb: cb}
	r.instances = append(r.instances, s)
	r.priorWasStopped = append(r.priorWasStopped, prior)
	return s
}

func (r *strategyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

func (r *strategyRecorder) instance(i int) *fakeStrategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[i]
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, srv *httptest.Server, rec *strategyRecorder, opts Options) *Engine {
	t.Helper()
	opts.ProbeAttempts = 2
	opts.ProbeInterval = time.Millisecond
	prober := NewProber(srv.Client(), zap.NewNop())
	return NewEngine(prober, rec.factory, opts, zap.NewNop())
}

func TestEngineStartToPlaying(t *testing.T) {
	srv := okServer(t)
	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateAttaching, e.State())

	rec.instance(0).ready()
	assert.Equal(t, StatePlaying, e.State())
}

func TestEngineProbeExhaustedGoesIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var notices []string
	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{Notify: func(n string) {
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
	}})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return e.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Zero(t, rec.count())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, notices, "stream unavailable")
}

func TestEngineFatalErrorRestartsSameURL(t *testing.T) {
	srv := okServer(t)
	rec := &strategyRecorder{}
	var restarts int
	var mu sync.Mutex
	e := newTestEngine(t, srv, rec, Options{OnRestart: func() {
		mu.Lock()
		restarts++
		mu.Unlock()
	}})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.instance(0).ready()
	require.Equal(t, StatePlaying, e.State())

	rec.instance(0).fail(errors.New("manifest gap"))

	// Recovery re-probes the same URL and attaches a fresh instance; the
	// prior one must be fully released before the new one exists.
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
	assert.True(t, rec.instance(0).isStopped())
	rec.mu.Lock()
	assert.True(t, rec.priorWasStopped[1])
	rec.mu.Unlock()

	rec.instance(1).ready()
	assert.Equal(t, StatePlaying, e.State())
	mu.Lock()
	assert.Equal(t, 1, restarts)
	mu.Unlock()
}

func TestEngineBoundedPolicyStopsRetrying(t *testing.T) {
	srv := okServer(t)
	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{Policy: RestartUpTo(0)})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.instance(0).ready()

	rec.instance(0).fail(errors.New("decode error"))
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 1, rec.count())
	assert.True(t, rec.instance(0).isStopped())
}

func TestEngineStopReleasesEverything(t *testing.T) {
	srv := okServer(t)
	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.instance(0).ready()

	e.Stop()
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, rec.instance(0).isStopped())

	// Stale callbacks from the released instance are dropped.
	rec.instance(0).fail(errors.New("late error"))
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, 1, rec.count())
}

func TestEngineStopSupersedesInFlightProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{})

	e.Start(srv.URL)
	e.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateStopped, e.State())
	assert.Zero(t, rec.count())
}

func TestEngineReportsStateTransitions(t *testing.T) {
	srv := okServer(t)
	rec := &strategyRecorder{}

	var mu sync.Mutex
	var states []State
	e := newTestEngine(t, srv, rec, Options{OnState: func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}})

	e.Start(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.instance(0).ready()
	e.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateProbing, StateAttaching, StatePlaying, StateStopped}, states)
}

func TestEngineUpgradesInsecureURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rec := &strategyRecorder{}
	e := newTestEngine(t, srv, rec, Options{})
	e.Start("http://cdn.example.com/live/key.m3u8")
	assert.Equal(t, "https://cdn.example.com/live/key.m3u8", e.URL())
	e.Stop()
}
