package autopilot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cpunion/moltbot/pkg/types"
)

// State is the controller's run state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText renders the state for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock sets the clock driving every timer.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithRand sets the random source for sort, target and cooldown picks.
func WithRand(r *rand.Rand) Option {
	return func(ctl *Controller) { ctl.rng = newLockedRand(r) }
}

// WithLogger sets the structured logger the journal mirrors to.
func WithLogger(l zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithSink persists journal entries.
func WithSink(s Sink) Option {
	return func(ctl *Controller) { ctl.sink = s }
}

// Controller starts and stops the engagement and growth loops.
//
// Every Start opens a new run identified by a token. Timer callbacks carry
// the token of the run that armed them and do nothing once that run is over,
// so a Stop followed by a quick Start never revives the old schedule. Calls
// already in flight when Stop happens finish, but their results are dropped;
// the next Start or Close cancels them.
type Controller struct {
	cfg     Config
	social  Social
	clock   clockwork.Clock
	rng     *lockedRand
	log     zerolog.Logger
	sink    Sink
	journal *Journal
	engager *engager
	grower  *grower

	// One engagement cycle at a time, across runs.
	cycles *semaphore.Weighted
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	closed    bool
	claimed   bool
	run       uint64
	cancelRun context.CancelFunc
	countdown int
	haltSubs  map[int]func(error)
	nextHalt  int

	cooldownTimer  clockwork.Timer
	countdownTimer clockwork.Timer
	growthTimer    clockwork.Timer
}

// New creates an idle controller. The agent counts as unclaimed until
// SetClaimed or RefreshClaim says otherwise.
func New(social Social, writer Writer, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg.withDefaults(),
		social:   social,
		clock:    clockwork.NewRealClock(),
		log:      zerolog.Nop(),
		cycles:   semaphore.NewWeighted(1),
		haltSubs: make(map[int]func(error)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = newLockedRand(nil)
	}
	c.log = c.log.With().Str("component", "autopilot").Logger()
	c.journal = NewJournal(c.cfg.JournalCapacity, c.clock, c.log)
	if c.sink != nil {
		c.journal.SetSink(c.sink)
	}
	c.engager = &engager{social: social, writer: writer, journal: c.journal, rng: c.rng, cfg: c.cfg}
	c.grower = &grower{social: social, journal: c.journal, rng: c.rng, cfg: c.cfg}
	return c
}

// Journal exposes the activity log.
func (c *Controller) Journal() *Journal { return c.journal }

// Logs returns the activity log, oldest first.
func (c *Controller) Logs() []types.LogEntry { return c.journal.Entries() }

// Subscribe streams journal changes to fn until the returned func is called.
func (c *Controller) Subscribe(fn func(Event)) func() {
	return c.journal.Subscribe(fn)
}

// OnHalt registers fn to learn why a failed engagement cycle stopped the
// loops. Stop and Close never call it. The returned func unregisters.
func (c *Controller) OnHalt(fn func(error)) func() {
	c.mu.Lock()
	id := c.nextHalt
	c.nextHalt++
	c.haltSubs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.haltSubs, id)
			c.mu.Unlock()
		})
	}
}

// State reports whether the loops are running.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Countdown returns the seconds left before the next engagement cycle, or 0
// while a cycle is underway or the controller is idle.
func (c *Controller) Countdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown
}

// Start launches the loops. It makes no network call: the claim status is the
// cached one. Start on a running controller is a no-op. ctx bounds the calls
// the run makes and should outlive the caller's request.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.claimed {
		c.mu.Unlock()
		c.journal.Add(types.SeverityError, "Agent not claimed. Automation unavailable.")
		return ErrNotClaimed
	}
	if c.state == Running {
		c.mu.Unlock()
		return nil
	}
	if c.cancelRun != nil {
		c.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRun = cancel
	c.run++
	token := c.run
	c.state = Running
	c.countdown = 0
	c.mu.Unlock()

	c.journal.Reset()
	c.journal.Add(types.SeveritySuccess, "Service started. Monitoring feed...")
	c.journal.Add(types.SeverityAction, fmt.Sprintf("Growth module active (%d follows/min).", int(time.Minute/c.cfg.GrowthPeriod)))

	go c.engage(runCtx, token)
	go c.grow(runCtx, token)
	return nil
}

// Stop halts both loops. It is safe to call any number of times; only a
// real transition is logged.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	c.mu.Unlock()

	c.journal.Add(types.SeverityInfo, "Automation stopped.")
}

// Close stops the loops, aborts in-flight calls and waits for them to
// return. The controller cannot be restarted afterwards.
func (c *Controller) Close() error {
	c.Stop()

	c.mu.Lock()
	c.closed = true
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	if c.sink != nil {
		return c.sink.Close()
	}
	return nil
}

// haltLocked moves to Idle and cancels all three timers.
func (c *Controller) haltLocked() {
	c.state = Idle
	c.countdown = 0
	stopTimer(&c.cooldownTimer)
	stopTimer(&c.countdownTimer)
	stopTimer(&c.growthTimer)
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Controller) liveLocked(token uint64) bool {
	return c.state == Running && c.run == token && !c.closed
}

func (c *Controller) live(token uint64) func() bool {
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.liveLocked(token)
	}
}

// enter registers a unit of work for the run, or reports that the run is over.
func (c *Controller) enter(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(token) {
		return false
	}
	c.wg.Add(1)
	return true
}

// engage runs one cycle, then either schedules the next one or, on failure,
// stops everything.
func (c *Controller) engage(ctx context.Context, token uint64) {
	if !c.enter(token) {
		return
	}
	defer c.wg.Done()

	if err := c.cycles.Acquire(ctx, 1); err != nil {
		return
	}
	live := c.live(token)
	err := c.engager.cycle(ctx, live)
	c.cycles.Release(1)

	if errors.Is(err, errStale) {
		return
	}
	if err != nil {
		var observers []func(error)
		c.mu.Lock()
		halted := c.liveLocked(token)
		if halted {
			c.haltLocked()
			for _, fn := range c.haltSubs {
				observers = append(observers, fn)
			}
		}
		c.mu.Unlock()
		if halted {
			c.journal.Add(types.SeverityError, fmt.Sprintf("Runtime Error: %v", err))
			for _, fn := range observers {
				fn(err)
			}
		}
		return
	}
	c.scheduleNext(ctx, token)
}

// scheduleNext arms the cooldown and the per-second countdown.
func (c *Controller) scheduleNext(ctx context.Context, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(token) {
		return
	}

	secs := c.pickCooldown()
	c.countdown = secs
	stopTimer(&c.countdownTimer)
	c.countdownTimer = c.clock.AfterFunc(time.Second, func() { c.tick(token) })
	stopTimer(&c.cooldownTimer)
	c.cooldownTimer = c.clock.AfterFunc(time.Duration(secs)*time.Second, func() {
		c.mu.Lock()
		if c.liveLocked(token) {
			c.cooldownTimer = nil
			c.countdown = 0
			stopTimer(&c.countdownTimer)
		}
		c.mu.Unlock()
		c.engage(ctx, token)
	})
}

// pickCooldown returns whole seconds in [CooldownMin, CooldownMax].
func (c *Controller) pickCooldown() int {
	lo := int(c.cfg.CooldownMin / time.Second)
	hi := int(c.cfg.CooldownMax / time.Second)
	return lo + c.rng.Intn(hi-lo+1)
}

func (c *Controller) tick(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(token) {
		return
	}
	if c.countdown > 0 {
		c.countdown--
	}
	if c.countdown > 0 {
		c.countdownTimer = c.clock.AfterFunc(time.Second, func() { c.tick(token) })
	} else {
		c.countdownTimer = nil
	}
}

// grow re-arms the growth timer and then performs one growth step, so a
// slow follow never delays the next firing.
func (c *Controller) grow(ctx context.Context, token uint64) {
	if !c.enter(token) {
		return
	}
	defer c.wg.Done()

	c.mu.Lock()
	if c.liveLocked(token) {
		c.growthTimer = c.clock.AfterFunc(c.cfg.GrowthPeriod, func() { c.grow(ctx, token) })
	}
	c.mu.Unlock()

	c.grower.fire(ctx, c.live(token))
}
