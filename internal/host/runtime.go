// Package host embeds a goja script runtime behind a goja_nodejs event loop
// and implements the script-side collaborators the bridge depends on.
//
// goja.Runtime is not goroutine-safe, so every touch of it is routed through
// the event loop. Native operations bound into the runtime and results the
// script reports back are handed off to host-owned worker goroutines, which
// keeps the loop free while Go code waits on the script.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"github.com/joeycumines/go-jsbridge/internal/functable"
	"github.com/joeycumines/go-jsbridge/internal/goroutineid"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// DefaultSyncTimeout is the maximum duration to wait for RunOnLoopSync.
const DefaultSyncTimeout = 5 * time.Second

// DefaultMaxCallStackSize is the script call depth allowed on the loop.
const DefaultMaxCallStackSize = 10000

// ErrNotRunning is returned when work is submitted to a stopped runtime.
var ErrNotRunning = errors.New("host: event loop not running")

// Runtime owns a goja runtime and the event loop that serialises access to
// it.
//
//	rt, err := host.NewRuntime(ctx)
//	if err != nil { ... }
//	defer rt.Close()
//
//	err = rt.RunOnLoopSync(func(vm *goja.Runtime) error {
//	    _, err := vm.RunString("console.log('hello')")
//	    return err
//	})
type Runtime struct {
	loop      *eventloop.EventLoop
	registry  *require.Registry
	logger    *slog.Logger
	decoder   *value.Decoder
	functions *functable.Table[goja.Value]

	// calls runs native operation handlers, results runs the result sink
	calls   *serialQueue
	results *serialQueue

	// vm is only valid on the loop goroutine
	vm     *goja.Runtime
	loopID atomic.Int64

	sinkMu sync.RWMutex
	sink   func(raw string)

	mu      sync.RWMutex
	started bool
	stopped bool
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime starts an event loop with the bridge globals installed. The
// runtime stops when ctx is done or Close is called.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	o.registry.RegisterNativeModule(ValueModuleName, valueModule(o.decoder))

	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(o.registry),
		eventloop.EnableConsole(false),
	)

	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:      loop,
		registry:  o.registry,
		logger:    o.logger,
		decoder:   o.decoder,
		functions: functable.New[goja.Value](o.cacheLimit),
		timeout:   o.syncTimeout,
		ctx:       childCtx,
		cancel:    cancel,
	}
	rt.calls = newSerialQueue("calls", o.logger)
	rt.results = newSerialQueue("results", o.logger)

	loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	errCh := make(chan error, 1)
	if !loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.loopID.Store(goroutineid.Get())
		rt.vm = vm
		vm.SetMaxCallStackSize(o.maxStack)
		errCh <- rt.install(vm, o.cacheLimit)
	}) {
		_ = rt.Close()
		return nil, ErrNotRunning
	}
	if err := <-errCh; err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = rt.Close()
		})
	}

	rt.logger.Debug("runtime started", slog.Int("function_cache_limit", o.cacheLimit))
	return rt, nil
}

// Registry returns the require registry scripts load native modules from.
func (rt *Runtime) Registry() *require.Registry {
	return rt.registry
}

// Context is cancelled when the runtime stops. Native operation handlers
// receive it.
func (rt *Runtime) Context() context.Context {
	return rt.ctx
}

// Close stops the event loop and the worker goroutines. It is safe to call
// more than once, and from any goroutine the runtime owns.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	if rt.OnLoop() {
		// Stop waits for the current job, which is us
		rt.loop.StopNoWait()
	} else {
		rt.loop.Stop()
	}
	rt.calls.close()
	rt.results.close()

	rt.logger.Debug("runtime stopped")
	return nil
}

// Done is closed when the runtime stops.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// IsRunning reports whether the runtime is started and not stopped.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// OnLoop reports whether the caller runs on the event loop goroutine or on
// the goroutine that delivers script results. Blocking there for a script
// result can never succeed.
func (rt *Runtime) OnLoop() bool {
	id := goroutineid.Get()
	if id == 0 {
		return false
	}
	return id == rt.loopID.Load() || id == rt.results.gid.Load()
}

// RunOnLoop schedules fn on the event loop. It returns false if the loop is
// not running.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	if !rt.IsRunning() {
		return false
	}
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopSync runs fn on the event loop and waits for it, bounded by the
// configured sync timeout.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return ErrNotRunning
	}
	timeout := rt.timeout
	rt.mu.RUnlock()

	errCh := make(chan error, 1)
	if !rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- fn(vm)
	}) {
		return ErrNotRunning
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("runtime stopped before completion")
	case <-expired:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// TryRunOnLoopSync is RunOnLoopSync, except that a caller already on the
// event loop runs fn directly instead of deadlocking.
func (rt *Runtime) TryRunOnLoopSync(fn func(*goja.Runtime) error) error {
	if !rt.IsRunning() {
		return ErrNotRunning
	}
	if id := rt.loopID.Load(); id > 0 && goroutineid.Get() == id {
		return fn(rt.vm)
	}
	return rt.RunOnLoopSync(fn)
}

// LoadScript compiles and runs code, waiting for it to finish.
func (rt *Runtime) LoadScript(name, code string) error {
	return rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		prg, err := goja.Compile(name, code, false)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}
		return nil
	})
}

// Eval runs code and exports its completion value.
func (rt *Runtime) Eval(code string) (any, error) {
	var result any
	err := rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return err
		}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			result = v.Export()
		}
		return nil
	})
	return result, err
}
