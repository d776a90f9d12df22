package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Script-side names used by a dispatch.
const (
	LastCallbackName = "__lastCallback"
	LastResultName   = "__lastResult"
	PassResultName   = "__bridgePassResult"
)

// Injector runs script text in the embedded runtime without waiting for it.
// The returned error reports only a failure to schedule the script.
type Injector interface {
	Inject(script string) error
}

// BatchInjector is an Injector that can run several statements back to back,
// with no other script executing in between.
type BatchInjector interface {
	Injector
	InjectBatch(scripts ...string) error
}

// FunctionValidator reports whether a function reference still names the
// function it was minted for.
type FunctionValidator interface {
	Live(id uint64, source string) bool
}

// LoopDetector reports whether the caller runs on the script runtime's own
// goroutine.
type LoopDetector interface {
	OnLoop() bool
}

// ResultFunc receives the value a script function returned.
type ResultFunc func(value.Value)

// State is the correlator's single-slot state.
type State int32

const (
	StateIdle State = iota
	StateAwaitingResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResult:
		return "awaiting-result"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Correlator pairs host-initiated script calls with the results the script
// runtime reports back.
//
// At most one call with a result callback is outstanding at a time; a second
// such Invoke blocks until the first resolves, is cancelled or times out.
// Fire-and-forget calls never wait for the slot.
//
// The script side reports once per dispatched call, in dispatch order, with no
// correlation id. The correlator therefore keeps a FIFO of dispatched calls
// and hands each report to the oldest entry. Abandoned calls stay queued so
// that their late result is swallowed instead of being misattributed.
type Correlator struct {
	injector Injector
	opts     *options

	// slot holds a token while a call is awaiting its result
	slot chan struct{}

	// dispatchMu keeps queue order equal to injection order
	dispatchMu sync.Mutex

	mu          sync.Mutex
	outstanding []*pendingCall
	current     *pendingCall
	seq         uint64
}

type pendingCall struct {
	seq       uint64
	resolve   ResultFunc
	discard   bool
	settled   bool
	timer     *time.Timer
	abandoned chan struct{}
}

// NewCorrelator returns an idle correlator dispatching through injector.
func NewCorrelator(injector Injector, opts ...Option) (*Correlator, error) {
	if injector == nil {
		return nil, fmt.Errorf("injector cannot be nil")
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return newCorrelator(injector, o), nil
}

func newCorrelator(injector Injector, o *options) *Correlator {
	return &Correlator{
		injector: injector,
		opts:     o,
		slot:     make(chan struct{}, 1),
	}
}

// State reports whether a call is awaiting its result.
func (c *Correlator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return StateAwaitingResult
	}
	return StateIdle
}

// Outstanding returns the number of dispatched calls whose report has not
// arrived yet, including fire-and-forget and abandoned calls.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// Invoke calls the script function fn with args.
//
// A fn that is not a function reference makes Invoke a no-op. With onResult
// set, Invoke first takes the single result slot, waiting while another call
// is awaiting its result (ctx bounds that wait), and registers the call before
// anything is injected. onResult then runs once, on whichever goroutine
// reports the result, after the slot has been released.
func (c *Correlator) Invoke(ctx context.Context, fn value.Value, args []value.Value, onResult ResultFunc) error {
	_, err := c.invoke(ctx, fn, args, onResult)
	return err
}

// Call invokes fn and blocks until its result arrives, ctx ends, or the call
// is abandoned.
func (c *Correlator) Call(ctx context.Context, fn value.Value, args ...value.Value) (value.Value, error) {
	if !fn.IsFunction() {
		return value.Null(), ErrNotCallable
	}
	if c.opts.detector != nil && c.opts.detector.OnLoop() {
		return value.Null(), ErrWouldDeadlock
	}

	results := make(chan value.Value, 1)
	call, err := c.invoke(ctx, fn, args, func(v value.Value) { results <- v })
	if err != nil {
		return value.Null(), err
	}

	select {
	case v := <-results:
		return v, nil
	case <-call.abandoned:
		return value.Null(), ErrAbandoned
	case <-ctx.Done():
		if !c.abandon(call, "context done") {
			// settled concurrently; a report delivers shortly
			select {
			case v := <-results:
				return v, nil
			case <-call.abandoned:
				return value.Null(), ErrAbandoned
			}
		}
		return value.Null(), ctx.Err()
	}
}

// Cancel abandons the call currently awaiting its result. The slot is
// released and the late result, if any, is discarded.
func (c *Correlator) Cancel() bool {
	c.mu.Lock()
	call := c.current
	c.mu.Unlock()
	if call == nil {
		return false
	}
	return c.abandon(call, "cancelled")
}

// ReportResult delivers the script's raw result text to the oldest
// outstanding call. With nothing outstanding it does nothing.
func (c *Correlator) ReportResult(raw string) {
	c.mu.Lock()
	if len(c.outstanding) == 0 {
		c.mu.Unlock()
		c.opts.logger.Debug("result reported with no call outstanding")
		return
	}
	call := c.outstanding[0]
	c.outstanding[0] = nil
	c.outstanding = c.outstanding[1:]
	call.settled = true
	if call.timer != nil {
		call.timer.Stop()
	}
	c.releaseLocked(call)
	resolve, discard := call.resolve, call.discard
	c.mu.Unlock()

	if discard || resolve == nil {
		c.opts.logger.Debug("discarding result", slog.Uint64("seq", call.seq))
		return
	}
	resolve(c.opts.decoder.Parse(raw))
}

func (c *Correlator) invoke(ctx context.Context, fn value.Value, args []value.Value, onResult ResultFunc) (*pendingCall, error) {
	if !fn.IsFunction() {
		c.opts.logger.Debug("ignoring call to non-function", slog.String("kind", fn.Kind().String()))
		return nil, nil
	}
	if c.opts.validator != nil {
		if id, ok := fn.FunctionID(); ok {
			src, _ := fn.FunctionSource()
			if !c.opts.validator.Live(id, src) {
				return nil, fmt.Errorf("%w: id %d", ErrStaleFunction, id)
			}
		}
	}

	call := &pendingCall{
		resolve:   onResult,
		discard:   onResult == nil,
		abandoned: make(chan struct{}),
	}

	if onResult != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case c.slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	scripts := dispatchStatements(fn, args)

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.seq++
	call.seq = c.seq
	c.outstanding = append(c.outstanding, call)
	if onResult != nil {
		c.current = call
	}
	c.mu.Unlock()

	if err := c.inject(scripts); err != nil {
		c.mu.Lock()
		c.removeLocked(call)
		if !call.settled {
			call.settled = true
			c.releaseLocked(call)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("bridge: dispatch failed: %w", err)
	}

	c.opts.logger.Debug("dispatched call",
		slog.Uint64("seq", call.seq),
		slog.Bool("awaiting", onResult != nil),
		slog.Int("args", len(args)),
	)

	if onResult != nil && c.opts.timeout > 0 {
		c.mu.Lock()
		if !call.settled {
			call.timer = time.AfterFunc(c.opts.timeout, func() { c.abandon(call, "timeout") })
		}
		c.mu.Unlock()
	}

	return call, nil
}

func (c *Correlator) inject(scripts []string) error {
	if b, ok := c.injector.(BatchInjector); ok {
		return b.InjectBatch(scripts...)
	}
	for _, s := range scripts {
		if err := c.injector.Inject(s); err != nil {
			return err
		}
	}
	return nil
}

// abandon marks call as settled without a result. It returns false if the
// call had already settled.
func (c *Correlator) abandon(call *pendingCall, reason string) bool {
	c.mu.Lock()
	if call.settled {
		c.mu.Unlock()
		return false
	}
	call.settled = true
	call.discard = true
	if call.timer != nil {
		call.timer.Stop()
	}
	c.releaseLocked(call)
	close(call.abandoned)
	c.mu.Unlock()

	c.opts.logger.Warn("abandoned call", slog.Uint64("seq", call.seq), slog.String("reason", reason))
	return true
}

func (c *Correlator) releaseLocked(call *pendingCall) {
	if c.current == call {
		c.current = nil
		<-c.slot
	}
}

func (c *Correlator) removeLocked(call *pendingCall) {
	for i, p := range c.outstanding {
		if p == call {
			c.outstanding = append(c.outstanding[:i], c.outstanding[i+1:]...)
			return
		}
	}
}

// dispatchStatements builds the ordered statements of a call: clear the
// previous target, bind the new one, clear any stale result, then invoke and
// always report back. If binding fails the invoke throws and Null is reported.
func dispatchStatements(fn value.Value, args []value.Value) []string {
	return []string{
		"var " + LastCallbackName + " = null;",
		"var " + LastCallbackName + " = " + value.Literal(fn) + ";",
		"var " + LastResultName + " = null;",
		"try { " + LastResultName + " = " + LastCallbackName + "(" + value.Literals(args) + "); } finally { " +
			PassResultName + "(" + LastResultName + "); }",
	}
}
