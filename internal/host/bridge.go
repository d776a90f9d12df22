package host

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/joeycumines/go-jsbridge/internal/bridge"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

var (
	_ bridge.Host              = (*Runtime)(nil)
	_ bridge.BatchInjector     = (*Runtime)(nil)
	_ bridge.FunctionValidator = (*Runtime)(nil)
	_ bridge.LoopDetector      = (*Runtime)(nil)
)

// Inject schedules script on the event loop and returns without waiting.
// Script errors are logged.
func (rt *Runtime) Inject(script string) error {
	return rt.InjectBatch(script)
}

// InjectBatch schedules scripts as a single loop job, so nothing else runs in
// between. A failing statement is logged and the rest still run.
func (rt *Runtime) InjectBatch(scripts ...string) error {
	if !rt.RunOnLoop(func(vm *goja.Runtime) {
		for _, script := range scripts {
			if _, err := vm.RunString(script); err != nil {
				rt.logger.Warn("injected script failed", slog.Any("error", err))
			}
		}
	}) {
		return ErrNotRunning
	}
	return nil
}

// SetResultSink routes __bridgePassResult reports to sink. Reports are
// delivered in order on a dedicated goroutine.
func (rt *Runtime) SetResultSink(sink func(raw string)) {
	rt.sinkMu.Lock()
	rt.sink = sink
	rt.sinkMu.Unlock()
}

func (rt *Runtime) deliver(raw string) {
	rt.sinkMu.RLock()
	sink := rt.sink
	rt.sinkMu.RUnlock()
	if sink == nil {
		rt.logger.Debug("no result sink, dropping report")
		return
	}
	if !rt.results.push(func() { sink(raw) }) {
		rt.logger.Debug("runtime stopped, dropping report")
	}
}

// Bind exposes a native object named name whose methods accept bridge text.
// Each call decodes its arguments on the loop, pads them with Null up to the
// operation's arity, then runs the handler on the native call goroutine.
func (rt *Runtime) Bind(name string, ops []bridge.Operation) error {
	return rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		obj := vm.NewObject()
		for _, op := range ops {
			if err := obj.Set(op.Name, rt.nativeMethod(name, op)); err != nil {
				return fmt.Errorf("bind %s.%s: %w", name, op.Name, err)
			}
		}
		return vm.Set(name, obj)
	})
}

func (rt *Runtime) nativeMethod(object string, op bridge.Operation) func(goja.FunctionCall) goja.Value {
	logger := rt.logger.With(slog.String("operation", object+"."+op.Name))
	return func(call goja.FunctionCall) goja.Value {
		args := make([]value.Value, op.Arity)
		for i := range args {
			arg := call.Argument(i)
			if goja.IsUndefined(arg) || goja.IsNull(arg) {
				args[i] = value.Null()
				continue
			}
			args[i] = rt.decoder.Parse(arg.String())
		}
		if !rt.calls.push(func() {
			if err := op.Handler(rt.ctx, args); err != nil {
				logger.Warn("native operation failed", slog.Any("error", err))
			}
		}) {
			logger.Debug("runtime stopped, dropping native call")
		}
		return goja.Undefined()
	}
}

// Live reports whether function id still holds a function with the given
// source text. See functable.Table.Live for the identical-source case.
func (rt *Runtime) Live(id uint64, source string) bool {
	return rt.functions.Live(id, source)
}

// SetFunctionCacheLimit empties the function cache and restarts script-side
// ids at zero, wrapping after limit.
func (rt *Runtime) SetFunctionCacheLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("function cache limit must not be negative, got %d", limit)
	}
	return rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		rt.functions.Reset(limit)
		if err := vm.Set(FunctionIDLimitName, limit); err != nil {
			return err
		}
		return vm.Set(FunctionIDCounterName, 0)
	})
}

// FunctionCacheLen returns the number of occupied function cache slots.
func (rt *Runtime) FunctionCacheLen() int {
	return rt.functions.Len()
}
