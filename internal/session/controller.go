package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bagmachine-remote/internal/device"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/params"
)

// Controller owns the machine status and the pending-action table and runs
// operator actions against the device. Device failures never escape it; each
// one becomes a notification.
type Controller struct {
	id      string
	dev     device.Device
	store   *params.Store
	queue   *notify.Queue
	journal Journal
	log     *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	status    MachineStatus
	rawStatus string
	pending   map[Action]bool

	subMu       sync.Mutex
	subs        map[chan Snapshot]struct{}
	closed      bool
	unsubscribe func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithJournal records every completed action in j.
func WithJournal(j Journal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithLogger sets the controller's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a controller in the Unknown state with no action pending.
func New(dev device.Device, store *params.Store, queue *notify.Queue, opts ...Option) *Controller {
	c := &Controller{
		id:      uuid.NewString(),
		dev:     dev,
		store:   store,
		queue:   queue,
		log:     logrus.NewEntry(logrus.StandardLogger()),
		now:     time.Now,
		status:  StatusUnknown,
		pending: make(map[Action]bool, len(Actions)),
		subs:    make(map[chan Snapshot]struct{}),
	}
	for _, a := range Actions {
		c.pending[a] = false
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("session", c.id)
	c.unsubscribe = queue.Subscribe(func(notify.Event, notify.Notification) {
		c.publish()
	})
	return c
}

// Initialize reads status, bag length and speed from the device. The three
// reads run concurrently and each successful one is applied on its own. If
// any read fails a single unreachable notification is shown.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.begin(ActionSync); err != nil {
		return err
	}
	defer c.end(ActionSync)

	var (
		g        errgroup.Group
		failMu   sync.Mutex
		failures []error
	)
	fail := func(err error) {
		failMu.Lock()
		defer failMu.Unlock()
		failures = append(failures, err)
	}

	g.Go(func() error {
		raw, err := c.dev.Status(ctx)
		if err != nil {
			fail(err)
			return nil
		}
		c.applyStatus(raw)
		return nil
	})
	g.Go(func() error {
		v, err := c.dev.BagLength(ctx)
		if err != nil {
			fail(err)
			return nil
		}
		c.applyParam(params.BagLength, v)
		return nil
	})
	g.Go(func() error {
		v, err := c.dev.Speed(ctx)
		if err != nil {
			fail(err)
			return nil
		}
		c.applyParam(params.Speed, v)
		return nil
	})
	_ = g.Wait()

	outcome := OutcomeOK
	msg := ""
	if len(failures) > 0 {
		outcome = OutcomeUnreachable
		msg = MsgUnreachable
		for _, err := range failures {
			c.log.WithError(err).Warn("sync read failed")
		}
		c.queue.Show(msg)
	}
	c.record(ctx, Record{Action: ActionSync, Outcome: outcome, Message: msg, Detail: joinErrors(failures)})
	return nil
}

func (c *Controller) applyStatus(raw string) {
	token := trimStatus(raw)
	c.mu.Lock()
	c.rawStatus = token
	c.status = statusFromToken(token)
	status := c.status
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"raw": token, "status": status}).Debug("status synced")
	c.publish()
}

func (c *Controller) applyParam(name params.Name, v int) {
	p, clamped := c.store.Set(name, v)
	if clamped {
		c.log.WithFields(logrus.Fields{"param": name, "device": v, "stored": p.Value}).
			Warn("device value out of range, clamped")
	}
	c.publish()
}

// AdjustBagLength moves the local bag length by delta and returns the clamped
// result. Nothing is sent to the device.
func (c *Controller) AdjustBagLength(delta int) int {
	v := c.store.Adjust(params.BagLength, delta)
	c.publish()
	return v
}

// AdjustSpeed moves the local speed by delta and returns the clamped result.
func (c *Controller) AdjustSpeed(delta int) int {
	v := c.store.Adjust(params.Speed, delta)
	c.publish()
	return v
}

// CommitBagLength sends the current local bag length to the device.
func (c *Controller) CommitBagLength(ctx context.Context) error {
	return c.commit(ctx, ActionSaveBagLength, params.BagLength, c.dev.SetBagLength, MsgBagLengthSaved, MsgBagLengthError)
}

// CommitSpeed sends the current local speed to the device.
func (c *Controller) CommitSpeed(ctx context.Context) error {
	return c.commit(ctx, ActionSaveSpeed, params.Speed, c.dev.SetSpeed, MsgSpeedSaved, MsgSpeedError)
}

func (c *Controller) commit(ctx context.Context, action Action, name params.Name,
	set func(context.Context, int) error, okFmt, rejected string) error {
	if err := c.begin(action); err != nil {
		return err
	}
	defer c.end(action)

	value := c.store.Value(name)
	err := set(ctx, value)
	outcome := classify(err)
	msg := message(outcome, okFmt, rejected, value)

	c.logOutcome(action, outcome, err, msg, logrus.Fields{"value": value})
	c.queue.Show(msg)
	c.record(ctx, Record{Action: action, Outcome: outcome, Value: &value, Message: msg, Detail: errDetail(err)})
	return nil
}

// Start asks the device to start the machine.
func (c *Controller) Start(ctx context.Context) error {
	return c.command(ctx, ActionStart, c.dev.Start, StatusRunning, MsgStarted, MsgStartError)
}

// Stop asks the device to stop the machine.
func (c *Controller) Stop(ctx context.Context) error {
	return c.command(ctx, ActionStop, c.dev.Stop, StatusStopped, MsgStopped, MsgStopError)
}

func (c *Controller) command(ctx context.Context, action Action, run func(context.Context) error,
	target MachineStatus, okMsg, rejected string) error {
	if err := c.begin(action); err != nil {
		return err
	}
	defer c.end(action)

	err := run(ctx)
	outcome := classify(err)
	if outcome == OutcomeOK {
		c.mu.Lock()
		c.status = target
		c.mu.Unlock()
	}
	msg := message(outcome, okMsg, rejected, -1)

	c.logOutcome(action, outcome, err, msg, nil)
	c.queue.Show(msg)
	c.record(ctx, Record{Action: action, Outcome: outcome, Message: msg, Detail: errDetail(err)})
	return nil
}

// ID identifies this session in logs and the journal.
func (c *Controller) ID() string {
	return c.id
}

// Pending reports whether action is in flight.
func (c *Controller) Pending(action Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[action]
}

// Status returns the last confirmed machine status.
func (c *Controller) Status() MachineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a consistent copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		SessionID: c.id,
		Status:    c.status,
		RawStatus: c.rawStatus,
		Pending:   make(map[Action]bool, len(c.pending)),
		TakenAt:   c.now(),
	}
	for a, p := range c.pending {
		s.Pending[a] = p
	}
	c.mu.Unlock()

	s.BagLength = c.store.Get(params.BagLength)
	s.Speed = c.store.Get(params.Speed)
	if n, ok := c.queue.Current(); ok {
		s.Notification = &n
	}
	return s
}

func (c *Controller) begin(action Action) error {
	c.mu.Lock()
	if c.pending[action] {
		c.mu.Unlock()
		return ErrActionPending
	}
	c.pending[action] = true
	c.mu.Unlock()

	c.publish()
	return nil
}

func (c *Controller) end(action Action) {
	c.mu.Lock()
	c.pending[action] = false
	c.mu.Unlock()

	c.publish()
}

func (c *Controller) record(ctx context.Context, r Record) {
	if c.journal == nil {
		return
	}
	r.SessionID = c.id
	r.At = c.now()
	if err := c.journal.Record(context.WithoutCancel(ctx), r); err != nil {
		c.log.WithError(err).WithField("action", r.Action).Warn("failed to journal action")
	}
}

func (c *Controller) logOutcome(action Action, outcome Outcome, err error, msg string, fields logrus.Fields) {
	entry := c.log.WithFields(logrus.Fields{"action": action, "outcome": outcome}).WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn(msg)
		return
	}
	entry.Info(msg)
}
