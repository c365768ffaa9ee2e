// Package readycheck runs the timed accept/decline protocol for a proposed game.
//
// Each Check owns one goroutine that selects over a bounded signal channel,
// a deadline timer, an abort channel and the parent context. The check
// resolves exactly once; Done is closed after the resolve callback returns
// and every later signal gets ErrStale.
package readycheck

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

// Outcome is how a check resolved.
type Outcome uint8

const (
	Pending Outcome = iota
	Confirmed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Result describes a resolved check.
type Result struct {
	CheckID    string
	Outcome    Outcome
	Reason     model.CancelReason
	Decliner   string
	Accepted   []string
	Missing    []string
	StartedAt  time.Time
	ResolvedAt time.Time
}

type signal struct {
	participant string
	accept      bool
	ack         chan error
}

// Check is one in-flight ready check.
type Check struct {
	id        string
	awaited   []string
	awaitSet  map[string]struct{}
	timeout   time.Duration
	startedAt time.Time
	deadline  time.Time
	onResolve func(Result)

	signals chan signal
	abort   chan model.CancelReason
	done    chan struct{}
	bufSize int
	now     func() time.Time
	log     logger.Logger

	mu       sync.Mutex
	accepted []string
	resolved bool
	result   Result
}

// Start launches a check awaiting every id in awaited. onResolve runs once on
// the check goroutine before Done is closed.
func Start(ctx context.Context, id string, awaited []string, timeout time.Duration, onResolve func(Result), opts ...Option) *Check {
	c := &Check{
		id:        id,
		awaited:   slices.Clone(awaited),
		awaitSet:  make(map[string]struct{}, len(awaited)),
		timeout:   timeout,
		onResolve: onResolve,
		abort:     make(chan model.CancelReason, 1),
		done:      make(chan struct{}),
		bufSize:   2 * len(awaited),
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range awaited {
		c.awaitSet[p] = struct{}{}
	}
	c.signals = make(chan signal, c.bufSize)
	c.startedAt = c.now()
	c.deadline = c.startedAt.Add(timeout)

	go c.run(ctx)
	return c
}

// ID returns the check id.
func (c *Check) ID() string { return c.id }

// Deadline returns when the check times out.
func (c *Check) Deadline() time.Time { return c.deadline }

// Awaited returns the participants the check waits for.
func (c *Check) Awaited() []string { return slices.Clone(c.awaited) }

// Awaits reports whether id is part of the check.
func (c *Check) Awaits(id string) bool {
	_, ok := c.awaitSet[id]
	return ok
}

// Accepted returns who has accepted so far, in order.
func (c *Check) Accepted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.accepted)
}

// Done is closed once the check resolved and its callback returned.
func (c *Check) Done() <-chan struct{} { return c.done }

// Result returns the resolution, if any.
func (c *Check) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.resolved
}

// Accept records an accept from participant.
func (c *Check) Accept(participant string) error { return c.Signal(participant, true) }

// Decline cancels the check on behalf of participant.
func (c *Check) Decline(participant string) error { return c.Signal(participant, false) }

// Signal delivers an accept or decline. It returns ErrNotAwaited for strangers,
// ErrStale once resolved, and nil when the signal was applied or was a
// duplicate accept.
func (c *Check) Signal(participant string, accept bool) error {
	if !c.Awaits(participant) {
		return ErrNotAwaited
	}
	if _, resolved := c.Result(); resolved {
		return ErrStale
	}
	s := signal{participant: participant, accept: accept, ack: make(chan error, 1)}
	select {
	case c.signals <- s:
	case <-c.done:
		return ErrStale
	}
	select {
	case err := <-s.ack:
		return err
	case <-c.done:
		select {
		case err := <-s.ack:
			return err
		default:
			return ErrStale
		}
	}
}

// Abort cancels the check with reason and waits for it to resolve.
func (c *Check) Abort(reason model.CancelReason) error {
	select {
	case c.abort <- reason:
	case <-c.done:
		return ErrStale
	}
	<-c.done
	return nil
}

func (c *Check) run(ctx context.Context) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case s := <-c.signals:
			// The deadline wins over signals that were queued behind it.
			if !c.now().Before(c.deadline) {
				s.ack <- ErrStale
				c.finish(Cancelled, model.CancelTimeout, "")
				return
			}
			if !s.accept {
				s.ack <- nil
				c.finish(Cancelled, model.CancelDeclined, s.participant)
				return
			}
			if c.recordAccept(s.participant) {
				s.ack <- nil
				c.finish(Confirmed, "", "")
				return
			}
			s.ack <- nil
		case reason := <-c.abort:
			c.finish(Cancelled, reason, "")
			return
		case <-timer.C:
			c.finish(Cancelled, model.CancelTimeout, "")
			return
		case <-ctx.Done():
			c.finish(Cancelled, model.CancelShutdown, "")
			return
		}
	}
}

// recordAccept stores an accept once and reports whether everybody accepted.
func (c *Check) recordAccept(participant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.accepted, participant) {
		c.accepted = append(c.accepted, participant)
	}
	return len(c.accepted) == len(c.awaited)
}

func (c *Check) finish(outcome Outcome, reason model.CancelReason, decliner string) {
	c.mu.Lock()
	accepted := slices.Clone(c.accepted)
	missing := make([]string, 0, len(c.awaited)-len(accepted))
	for _, p := range c.awaited {
		if !slices.Contains(accepted, p) {
			missing = append(missing, p)
		}
	}
	c.result = Result{
		CheckID:    c.id,
		Outcome:    outcome,
		Reason:     reason,
		Decliner:   decliner,
		Accepted:   accepted,
		Missing:    missing,
		StartedAt:  c.startedAt,
		ResolvedAt: c.now(),
	}
	c.resolved = true
	res := c.result
	c.mu.Unlock()

	c.log.Info(context.Background(), "ready check resolved",
		logger.String("check_id", c.id),
		logger.String("outcome", outcome.String()),
		logger.String("reason", string(reason)),
		logger.Int("accepted", len(accepted)),
	)
	if c.onResolve != nil {
		c.onResolve(res)
	}
	close(c.done)
}
