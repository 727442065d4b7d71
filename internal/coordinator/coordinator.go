// Package coordinator is the host-session-facing API consumed by a
// master process: it wires internal/registry's pure state machine to an
// internal/transport.Transport, performs the cooperative await_finish /
// message_await polling loops, and supervises a background link
// receiver with golang.org/x/sync/errgroup.
package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rtio-systems/subkernel/internal/constants"
	"github.com/rtio-systems/subkernel/internal/logging"
	"github.com/rtio-systems/subkernel/internal/metrics"
	"github.com/rtio-systems/subkernel/internal/registry"
	"github.com/rtio-systems/subkernel/internal/transport"
)

// LinkReceiver simulates the DRTIO link receiver task: it drives
// inbound notifications (subkernel_finished, message_handle_incoming,
// destination_changed) into the given Callbacks until ctx is done.
type LinkReceiver func(ctx context.Context, cb transport.Callbacks) error

// Config holds Coordinator tunables.
type Config struct {
	Transport           transport.Transport
	LinkReceiver        LinkReceiver
	Logger              *logging.Logger
	AwaitFinishTimeout  time.Duration
	MessageAwaitTimeout time.Duration
	PollInterval        time.Duration

	// Metrics, if set, is recorded against at every real lifecycle call
	// site below. Nil disables metrics recording entirely.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sane defaults. Transport is left
// nil; callers must set it.
func DefaultConfig() *Config {
	return &Config{
		Logger:              logging.Default(),
		AwaitFinishTimeout:  constants.DefaultAwaitFinishTimeout,
		MessageAwaitTimeout: constants.DefaultMessageAwaitTimeout,
		PollInterval:        constants.PollInterval,
	}
}

// Coordinator is the master's host-session-facing API.
type Coordinator struct {
	cfg *Config
	reg *registry.Registry

	group  *errgroup.Group
	cancel context.CancelFunc

	runMu      sync.Mutex
	runStarted map[uint32]time.Time
}

// New creates a Coordinator. A nil config uses DefaultConfig, in which
// case the caller must still assign a Transport before Upload/Load/etc.
// are usable.
func New(cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.PollInterval
	}
	return &Coordinator{cfg: cfg, reg: registry.New(), runStarted: make(map[uint32]time.Time)}
}

// Start launches the background link receiver, if configured,
// supervised by an errgroup so an error returned by the receiver
// surfaces through Wait instead of being dropped. A panic in the
// receiver is not recovered.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	c.group = group
	if c.cfg.LinkReceiver != nil {
		group.Go(func() error {
			return c.cfg.LinkReceiver(gctx, c)
		})
	}
}

// Stop cancels the background link receiver.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Wait blocks until the background link receiver returns, propagating
// its error.
func (c *Coordinator) Wait() error {
	if c.group == nil {
		return nil
	}
	return c.group.Wait()
}

// Add registers a subkernel image under id, destination. Cannot fail.
func (c *Coordinator) Add(id uint32, destination uint8, image []byte) {
	c.reg.Add(id, destination, image)
}

// Clear wipes the registry and message state (I-M4).
func (c *Coordinator) Clear() {
	c.reg.Clear()
}

// Upload requires the entry exists and calls Transport.Upload; on
// success state becomes Uploaded. Transport failures surface as
// DrtioError.
func (c *Coordinator) Upload(ctx context.Context, id uint32) error {
	dest, image, err := c.reg.BeginUpload(id)
	if err != nil {
		return translate("upload", id, err)
	}
	if err := c.cfg.Transport.Upload(ctx, id, dest, image); err != nil {
		c.recordUpload(false)
		return wrapDrtio("upload", id, err)
	}
	c.reg.CompleteUpload(id)
	c.recordUpload(true)
	return nil
}

// Load requires state Uploaded, else IncorrectState, and calls
// Transport.Load; when run is true state becomes Running.
func (c *Coordinator) Load(ctx context.Context, id uint32, run bool) error {
	dest, err := c.reg.BeginLoad(id)
	if err != nil {
		return translate("load", id, err)
	}
	if err := c.cfg.Transport.Load(ctx, id, dest, run); err != nil {
		c.recordLoad(false)
		return wrapDrtio("load", id, err)
	}
	c.reg.CompleteLoad(id, run)
	c.recordLoad(true)
	if run {
		c.markRunStarted(id)
		c.recordRun()
	}
	return nil
}

// SubkernelFinished is the link receiver's RunDone callback.
func (c *Coordinator) SubkernelFinished(id uint32, withException bool) {
	c.reg.SubkernelFinished(id, withException)
}

// MessageHandleIncoming is the link receiver's inbound-frame callback.
// It has no cancellation path; MessageHandleIncomingCtx is the variant
// that drops the frame silently when its ctx is already cancelled.
func (c *Coordinator) MessageHandleIncoming(id uint32, last bool, frame []byte) {
	c.reg.MessageHandleIncoming(id, last, frame, nil)
}

// MessageHandleIncomingCtx is the cancellable variant used directly by
// callers holding a context (MessageHandleIncoming satisfies
// transport.Callbacks without one).
func (c *Coordinator) MessageHandleIncomingCtx(ctx context.Context, id uint32, last bool, frame []byte) {
	c.reg.MessageHandleIncoming(id, last, frame, func() bool { return ctx.Err() != nil })
}

// DestinationChanged is the link receiver's link-up/link-down callback.
func (c *Coordinator) DestinationChanged(dest uint8, up bool) {
	if !up {
		c.reg.ApplyDestinationDown(dest)
		return
	}
	for _, id := range c.reg.DestinationEntries(dest) {
		sk, ok := c.reg.Get(id)
		if !ok {
			continue
		}
		err := c.cfg.Transport.Upload(context.Background(), id, dest, sk.Image)
		if err != nil {
			c.cfg.Logger.WithSubkernel(id).WithError(err).Warn("destination_changed: re-upload failed")
			c.recordTransportError()
		}
		c.reg.ApplyDestinationUp(id, err == nil)
	}
}

// RetrieveFinishStatus requires state Finished{*}, else IncorrectState;
// pulls exception bytes from the transport iff Exception, and moves
// state back to Uploaded.
func (c *Coordinator) RetrieveFinishStatus(ctx context.Context, id uint32) (registry.FinishResult, error) {
	needExc, commLost, err := c.reg.BeginRetrieveFinishStatus(id)
	if err != nil {
		return registry.FinishResult{}, translate("retrieve_finish_status", id, err)
	}

	result := registry.FinishResult{ID: id, CommLost: commLost}
	if needExc {
		sk, _ := c.reg.Get(id)
		data, err := c.cfg.Transport.RetrieveException(ctx, sk.Destination)
		if err != nil {
			return registry.FinishResult{}, wrapDrtio("retrieve_finish_status", id, err)
		}
		result.Exception = data
		result.HasExc = true
	}
	c.reg.CompleteRetrieveFinishStatus(id)
	c.recordFinish(id, needExc, commLost)
	return result, nil
}

// AwaitFinish pre-checks state ∈ {Running, Finished}, else
// IncorrectState, then blocks cooperatively — polling only via the
// registry's non-blocking TryObserve, never re-acquiring a blocking
// lock from inside the wait — until Finished or the deadline passes.
func (c *Coordinator) AwaitFinish(ctx context.Context, id uint32, timeout time.Duration) (registry.FinishResult, error) {
	if timeout <= 0 {
		timeout = c.cfg.AwaitFinishTimeout
	}
	state, ok := c.reg.State(id)
	if !ok {
		return registry.FinishResult{}, translate("await_finish", id, registry.ErrNotFound)
	}
	if state != registry.StateRunning && !state.Finished() {
		return registry.FinishResult{}, translate("await_finish", id, registry.ErrIncorrectState)
	}

	deadline := time.Now().Add(timeout)
	for {
		if state, found, locked := c.reg.TryObserve(id); locked {
			if !found {
				return registry.FinishResult{}, translate("await_finish", id, registry.ErrNotFound)
			}
			if state.Finished() {
				return c.RetrieveFinishStatus(ctx, id)
			}
		}
		if time.Now().After(deadline) {
			return registry.FinishResult{}, newTimeout("await_finish", id)
		}
		select {
		case <-ctx.Done():
			return registry.FinishResult{}, newSessionKilled("await_finish", id)
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// MessageAwait pre-checks state Running (IncorrectState if never
// registered, SubkernelFinished if already Finished), then scans
// MESSAGE_QUEUE for the first message from id until one arrives, the
// subkernel finishes, or the deadline passes.
func (c *Coordinator) MessageAwait(ctx context.Context, id uint32, timeout time.Duration) (registry.Message, error) {
	if timeout <= 0 {
		timeout = c.cfg.MessageAwaitTimeout
	}
	state, ok := c.reg.State(id)
	if !ok {
		return registry.Message{}, translate("message_await", id, registry.ErrIncorrectState)
	}
	if state != registry.StateRunning {
		if state.Finished() {
			return registry.Message{}, newSubkernelFinished("message_await", id)
		}
		return registry.Message{}, translate("message_await", id, registry.ErrIncorrectState)
	}

	deadline := time.Now().Add(timeout)
	for {
		if msg, found := c.reg.MessageAwaitPoll(id); found {
			c.recordMessageReceived(uint64(len(msg.Data)))
			return msg, nil
		}
		if state, found, locked := c.reg.TryObserve(id); locked && found && state.Finished() {
			return registry.Message{}, newSubkernelFinished("message_await", id)
		}
		if time.Now().After(deadline) {
			c.recordMessageAwaitTimeout()
			return registry.Message{}, newTimeout("message_await", id)
		}
		select {
		case <-ctx.Done():
			return registry.Message{}, newSessionKilled("message_await", id)
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// MessageSend serialises (count, tag, args) and hands it to
// Transport.SendMessage. Per spec §9's documented lock asymmetry this
// call acquires the registry's destination lookup unconditionally
// (no cancellation path), unlike MessageHandleIncoming.
func (c *Coordinator) MessageSend(ctx context.Context, id uint32, count uint8, tag uint8, args []byte) error {
	sk, ok := c.reg.Get(id)
	if !ok {
		return translate("message_send", id, registry.ErrNotFound)
	}
	data := encodeOutgoing(count, tag, args)
	if err := c.cfg.Transport.SendMessage(ctx, id, sk.Destination, data); err != nil {
		c.recordMessageSent(uint64(len(data)), false)
		return wrapDrtio("message_send", id, err)
	}
	c.recordMessageSent(uint64(len(data)), true)
	return nil
}

// markRunStarted records the wall-clock time a subkernel started
// running, consumed by recordFinish to compute run latency.
func (c *Coordinator) markRunStarted(id uint32) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.runStarted[id] = time.Now()
}

// takeRunStarted pops and returns the run-start time recorded for id,
// if any.
func (c *Coordinator) takeRunStarted(id uint32) (time.Time, bool) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	t, ok := c.runStarted[id]
	if ok {
		delete(c.runStarted, id)
	}
	return t, ok
}

func (c *Coordinator) recordUpload(success bool) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordUpload(success)
	}
}

func (c *Coordinator) recordLoad(success bool) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordLoad(success)
	}
}

func (c *Coordinator) recordRun() {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRun()
	}
}

func (c *Coordinator) recordFinish(id uint32, withException, commLost bool) {
	if c.cfg.Metrics == nil {
		return
	}
	var latencyNs uint64
	if started, ok := c.takeRunStarted(id); ok {
		latencyNs = uint64(time.Since(started).Nanoseconds())
	}
	c.cfg.Metrics.RecordFinish(withException, commLost, latencyNs)
}

func (c *Coordinator) recordMessageSent(bytes uint64, success bool) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordMessageSent(bytes, success)
	}
}

func (c *Coordinator) recordMessageReceived(bytes uint64) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordMessageReceived(bytes)
	}
}

func (c *Coordinator) recordMessageAwaitTimeout() {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordMessageAwaitTimeout()
	}
}

func (c *Coordinator) recordTransportError() {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordTransportError()
	}
}
