// Package loop drives the live recognition cycle: it owns the capture
// session, samples a frame on every tick, sends it for recognition and
// folds the answers into the prediction stabilizer.
//
// All state transitions and result folding happen under one mutex, so a
// tick, a response and a Stop never interleave. Requests run concurrently
// and may overlap; each result is tagged with the generation it was
// dispatched in and is dropped if the loop was stopped (or restarted)
// before it arrived.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teslashibe/voxture/internal/observe"
	"github.com/teslashibe/voxture/pkg/camera"
	"github.com/teslashibe/voxture/pkg/recognition"
	"github.com/teslashibe/voxture/pkg/stabilizer"
)

// Tick outcomes recorded on the ticks counter.
const (
	tickDispatched = "dispatched"
	tickNoFrame    = "no_frame"
	tickDeviceLost = "device_lost"
)

// Controller is the Idle/Running state machine.
type Controller struct {
	cfg        Config
	camera     *camera.Manager
	sampler    *camera.Sampler
	recognizer recognition.Recognizer
	stab       *stabilizer.Stabilizer
	logger     *slog.Logger
	metrics    *observe.Metrics

	mu          sync.Mutex
	state       State
	session     *camera.Session
	generation  uint64
	seq         uint64
	lastApplied uint64
	image       string
	ticks       uint64
	failures    uint64
	updatedAt   time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	listeners   []func(Snapshot)

	inflight sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithSampler overrides the frame sampler.
func WithSampler(s *camera.Sampler) Option {
	return func(c *Controller) { c.sampler = s }
}

// WithStabilizer overrides the default 5/3 stabilizer.
func WithStabilizer(s *stabilizer.Stabilizer) Option {
	return func(c *Controller) { c.stab = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates an Idle controller.
func New(cfg Config, cam *camera.Manager, rec recognition.Recognizer, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loop: invalid config: %w", err)
	}
	if cam == nil || rec == nil {
		return nil, errors.New("loop: camera manager and recognizer are required")
	}

	c := &Controller{
		cfg:        cfg,
		camera:     cam,
		recognizer: rec,
		state:      Idle,
		updatedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sampler == nil {
		c.sampler = camera.NewSampler()
	}
	if c.stab == nil {
		c.stab = stabilizer.NewDefault()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "loop")
	if c.metrics == nil {
		m, err := observe.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}
	return c, nil
}

// Start opens the capture and schedules ticks. Starting while Running is a
// no-op. If the device cannot be opened the controller stays Idle and the
// error wraps camera.ErrDeviceUnavailable.
//
// ctx bounds the device open only; the loop keeps running until Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return nil
	}

	sess, err := c.camera.Start(ctx)
	if err != nil {
		c.logger.Warn("start failed", "error", err)
		return err
	}

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.state = Running
	c.session = sess
	c.seq = 0
	c.lastApplied = 0
	c.cancel = cancel
	c.done = done

	go c.run(tickCtx, c.generation, sess, done)

	c.logger.Info("loop started",
		"session", sess.ID,
		"generation", c.generation,
		"interval", c.cfg.Interval)
	c.changedLocked()
	return nil
}

// Stop cancels the ticker, releases the capture, resets the stabilizer and
// clears the annotated image. It is safe to call in any state. In-flight
// requests are not cancelled; their results are discarded on arrival.
func (c *Controller) Stop() {
	c.mu.Lock()
	done := c.stopLocked("stopped")
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops the loop and waits for in-flight requests to settle.
func (c *Controller) Close() {
	c.Stop()
	c.inflight.Wait()
}

// stopLocked performs the Running→Idle transition and returns the ticker's
// done channel, or nil if it was already Idle. Callers on the ticker
// goroutine must not wait on it.
func (c *Controller) stopLocked(reason string) chan struct{} {
	wasRunning := c.state == Running

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	done := c.done
	c.done = nil

	if wasRunning {
		c.generation++
	}
	c.state = Idle
	c.session = nil

	if err := c.camera.Stop(); err != nil {
		c.logger.Warn("capture stop failed", "error", err)
	}

	hadState := c.stab.Label() != stabilizer.Sentinel || c.stab.Len() > 0 || c.image != ""
	c.stab.Reset()
	c.image = ""

	if wasRunning {
		c.logger.Info("loop stopped", "reason", reason, "generation", c.generation)
	}
	if wasRunning || hadState {
		c.changedLocked()
	}
	return done
}

func (c *Controller) run(ctx context.Context, gen uint64, sess *camera.Session, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, gen, sess)
		}
	}
}

// tick samples one frame and dispatches it.
func (c *Controller) tick(ctx context.Context, gen uint64, sess *camera.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running || c.generation != gen {
		return
	}
	c.ticks++

	frame, err := c.sampler.Sample(sess)
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrNoActiveFrame):
		c.metrics.RecordTick(ctx, tickNoFrame)
		c.logger.Debug("no frame this tick")
		return
	default:
		c.metrics.RecordTick(ctx, tickDeviceLost)
		c.logger.Error("capture device lost", "error", err)
		// Running on the ticker goroutine: do not wait for it.
		c.stopLocked("device lost")
		return
	}

	c.seq++
	c.metrics.RecordTick(ctx, tickDispatched)
	c.inflight.Add(1)
	go c.recognize(context.WithoutCancel(ctx), gen, c.seq, frame)
}

func (c *Controller) recognize(ctx context.Context, gen, seq uint64, frame *camera.Frame) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.requestTimeout())
	defer cancel()

	c.metrics.InFlight.Add(ctx, 1)
	defer c.metrics.InFlight.Add(ctx, -1)

	start := time.Now()
	res, err := c.recognizer.Recognize(ctx, frame)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		c.metrics.RecordRecognize(ctx, observe.StatusOK, elapsed)
	case errors.Is(err, recognition.ErrMalformedResponse):
		c.metrics.RecordRecognize(ctx, observe.StatusMalformed, elapsed)
	default:
		c.metrics.RecordRecognize(ctx, observe.StatusTransport, elapsed)
	}

	c.complete(ctx, gen, seq, res, err)
}

// complete folds a finished request into the observable state.
func (c *Controller) complete(ctx context.Context, gen, seq uint64, res *recognition.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.metrics.RecordStale(ctx, "generation")
		c.logger.Debug("discarding result from stopped session", "generation", gen, "seq", seq)
		return
	}

	if err != nil {
		c.failures++
		if recognition.IsTimeout(err) {
			c.logger.Debug("recognition timed out", "seq", seq)
		} else {
			c.logger.Warn("recognition failed", "seq", seq, "error", err)
		}
		return
	}

	if c.cfg.Ordering == OrderLatestCapture && seq <= c.lastApplied {
		c.metrics.RecordStale(ctx, "sequence")
		c.logger.Debug("discarding out-of-order result", "seq", seq, "applied", c.lastApplied)
		return
	}
	if seq > c.lastApplied {
		c.lastApplied = seq
	}

	changed := false
	if res.HasImage() && res.AnnotatedImage != c.image {
		c.image = res.AnnotatedImage
		changed = true
	}
	if res.HasLabel() {
		prev := c.stab.Label()
		label, decided := c.stab.Observe(res.Label)
		if decided {
			c.metrics.RecordStabilized(ctx, label != prev)
		}
		if label != prev {
			c.logger.Info("label changed", "from", prev, "to", label)
			changed = true
		}
	}

	if changed {
		c.changedLocked()
	}
}

// OnChange registers fn to receive a snapshot after every change of the
// state, label or annotated image. fn runs with the controller locked: it
// must not block or call back into the Controller.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns the current observable values.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the loop state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          c.state,
		Label:          c.stab.Label(),
		AnnotatedImage: c.image,
		Generation:     c.generation,
		Ticks:          c.ticks,
		Failures:       c.failures,
		UpdatedAt:      c.updatedAt,
	}
	if c.session != nil {
		snap.SessionID = c.session.ID
	}
	return snap
}

func (c *Controller) changedLocked() {
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()
	for _, fn := range c.listeners {
		fn(snap)
	}
}
