package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/location"
	"bus-tracker/internal/log"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/netmon"
)

var (
	ErrHalted         = errors.New("tracker halted")
	ErrAlreadyRunning = errors.New("tracker already running")
	ErrNotRunning     = errors.New("tracker not running")
)

// Reporter sends a position for a bus to the fleet API.
type Reporter interface {
	UpdateLocation(ctx context.Context, busID int, loc fleet.Coordinates) error
}

// SessionClearer removes the persisted session on logout.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// StatusSink receives a status snapshot after every cycle.
type StatusSink interface {
	PublishStatus(ctx context.Context, st Status) error
}

type Options struct {
	BusID    int
	Reporter Reporter
	Locator  location.Provider
	Network  netmon.Monitor
	Sessions SessionClearer

	ReportInterval   time.Duration
	NetCheckInterval time.Duration

	Sink     StatusSink         // optional
	Metrics  *metrics.Collector // optional
	Location *time.Location     // for the Last Sync label; defaults to time.Local
	Now      func() time.Time
}

// Tracker samples the device location and reports it for one bus on a fixed
// cadence, alongside an independent connectivity poll.
type Tracker struct {
	opts   Options
	fsm    *fsm.FSM
	guard  *semaphore.Weighted
	logger log.Logger

	mu          sync.Mutex
	connected   bool
	updating    bool
	lastSuccess time.Time
	running     bool
	runCtx      context.Context // nil once Run stops accepting cycles
	cancel      context.CancelFunc
	done        chan struct{}

	cycles sync.WaitGroup // every cycle, scheduled or manual
}

func New(opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	t := &Tracker{
		opts:      opts,
		guard:     semaphore.NewWeighted(1),
		logger:    log.WithName("tracker").WithValues("busId", opts.BusID),
		connected: true,
	}
	t.fsm = newMachine(t.logger)
	return t
}

// Run acquires location permission and drives both cadences until ctx is
// done or Logout is called. A denied permission halts reporting for good;
// the connectivity poll keeps running until the tracker is torn down.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	if t.fsm.Is(StateHalted) {
		t.mu.Unlock()
		return ErrHalted
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.running, t.runCtx, t.cancel, t.done = true, ctx, cancel, done
	t.mu.Unlock()

	defer func() {
		cancel()
		t.mu.Lock()
		t.runCtx = nil
		t.mu.Unlock()
		t.cycles.Wait()
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.watchConnectivity(gctx)
		return nil
	})
	g.Go(func() error {
		return t.report(gctx)
	})
	return g.Wait()
}

func (t *Tracker) report(ctx context.Context) error {
	if err := t.fsm.Event(ctx, eventStart); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}

	if err := t.opts.Locator.RequestPermission(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		t.logger.Warn("location permission denied, tracking halted", "error", err)
		t.transition(ctx, eventDeny)
		t.opts.Metrics.Halted()
		t.publish(ctx)
		return nil
	}
	if !t.transition(ctx, eventGrant) {
		return nil
	}
	t.logger.Info("tracking started", "interval", t.opts.ReportInterval)

	t.spawnCycle(ctx, "start")

	tick := time.NewTicker(t.opts.ReportInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			t.spawnCycle(ctx, "tick")
		}
	}
}

func (t *Tracker) watchConnectivity(ctx context.Context) {
	tick := time.NewTicker(t.opts.NetCheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.setConnected(t.opts.Network.Connected(ctx))
		}
	}
}

// spawnCycle runs a cycle without blocking the cadence.
func (t *Tracker) spawnCycle(ctx context.Context, trigger string) {
	t.cycles.Add(1)
	go func() {
		defer t.cycles.Done()
		t.runCycle(ctx, trigger)
	}()
}

// Outcome is the result of one tracking cycle.
type Outcome int

const (
	Sent Outcome = iota
	Offline
	Failed
	Overlapped
	Aborted
	NotNeeded
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Offline:
		return "offline"
	case Failed:
		return "failed"
	case Overlapped:
		return "overlapped"
	case Aborted:
		return "aborted"
	case NotNeeded:
		return "not_needed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// runCycle performs connectivity check, sample and send in order. At most
// one cycle is in flight; a cycle that finds another running is dropped.
func (t *Tracker) runCycle(ctx context.Context, trigger string) Outcome {
	if !t.guard.TryAcquire(1) {
		t.logger.Debug("cycle still in flight, skipping", "trigger", trigger)
		t.opts.Metrics.CycleSkipped("overlap")
		return Overlapped
	}
	defer t.guard.Release(1)

	logger := t.logger.WithValues("cycle", uuid.NewString(), "trigger", trigger)
	if !t.transition(ctx, eventTick) {
		return Aborted
	}
	started := t.opts.Now()

	if !t.opts.Network.Connected(ctx) {
		t.setConnected(false)
		t.transition(ctx, eventSkip)
		t.opts.Metrics.CycleSkipped("offline")
		logger.Info("offline, skipping report")
		t.publish(ctx)
		return Offline
	}

	t.setUpdating(true)
	defer t.setUpdating(false)

	pos, err := t.opts.Locator.Current(ctx)
	if err != nil {
		return t.fail(ctx, logger, "location", err)
	}
	if !t.transition(ctx, eventSample) {
		return Aborted
	}

	if err := t.opts.Reporter.UpdateLocation(ctx, t.opts.BusID, pos.Coordinates); err != nil {
		return t.fail(ctx, logger, "request", err)
	}

	now := t.opts.Now()
	t.mu.Lock()
	t.lastSuccess = now
	t.connected = true
	t.mu.Unlock()
	t.opts.Metrics.SetConnected(true)
	t.opts.Metrics.ReportOK(now, now.Sub(started))
	t.transition(ctx, eventDone)
	logger.Debug("location reported", "lat", pos.Lat, "lng", pos.Lng)
	t.publish(ctx)
	return Sent
}

func (t *Tracker) fail(ctx context.Context, logger log.Logger, reason string, err error) Outcome {
	if ctx.Err() != nil {
		t.transition(context.WithoutCancel(ctx), eventFail)
		return Aborted
	}
	t.setConnected(false)
	t.opts.Metrics.ReportFailed(reason)
	t.transition(ctx, eventFail)
	logger.Error(err, "location report failed", "reason", reason)
	t.publish(ctx)
	return Failed
}

// ConnectAgain runs a cycle immediately, outside the cadence. It does
// nothing unless the tracker currently considers itself disconnected.
// The cycle belongs to Run: Logout or teardown cancels it and waits for it.
func (t *Tracker) ConnectAgain(ctx context.Context) (Outcome, error) {
	if t.fsm.Is(StateHalted) {
		return Aborted, ErrHalted
	}
	if t.Status().Connected {
		return NotNeeded, nil
	}

	t.mu.Lock()
	runCtx := t.runCtx
	if runCtx == nil {
		t.mu.Unlock()
		return Aborted, ErrNotRunning
	}
	t.cycles.Add(1)
	t.mu.Unlock()
	defer t.cycles.Done()

	cycleCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return t.runCycle(cycleCtx, "manual"), nil
}

// Logout stops both cadences, waits for them to wind down, halts the
// tracker and clears the persisted session.
func (t *Tracker) Logout(ctx context.Context) error {
	t.halt(ctx, "logout")

	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := t.opts.Sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	t.logger.Info("logged out, tracking stopped")
	return nil
}

func (t *Tracker) halt(ctx context.Context, reason string) {
	if t.fsm.Is(StateHalted) {
		return
	}
	t.transition(context.WithoutCancel(ctx), eventHalt)
	t.opts.Metrics.Halted()
	t.logger.Info("tracker halted", "reason", reason)
}

// transition fires an event and reports whether the machine accepted it.
// Events rejected because the tracker halted meanwhile are expected.
func (t *Tracker) transition(ctx context.Context, event string) bool {
	if err := t.fsm.Event(ctx, event); err != nil {
		t.logger.Debug("transition rejected", "event", event, "state", t.fsm.Current(), "error", err)
		return false
	}
	return true
}

func (t *Tracker) setConnected(b bool) {
	t.mu.Lock()
	changed := t.connected != b
	t.connected = b
	t.mu.Unlock()
	t.opts.Metrics.SetConnected(b)
	if changed {
		t.logger.Info("connectivity changed", "connected", b)
	}
}

func (t *Tracker) setUpdating(b bool) {
	t.mu.Lock()
	t.updating = b
	t.mu.Unlock()
}

func (t *Tracker) publish(ctx context.Context) {
	if t.opts.Sink == nil {
		return
	}
	if err := t.opts.Sink.PublishStatus(ctx, t.Status()); err != nil {
		t.logger.Warn("publish status failed", "error", err)
	}
}
