package host

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-jsbridge/internal/bridge"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// captureInterface exposes NativeBridge.capture(v), which forwards v to the
// returned channel.
func captureInterface() (*bridge.Interface, <-chan []value.Value) {
	ch := make(chan []value.Value, 16)
	return &bridge.Interface{
		Name: "Host",
		Operations: []bridge.Operation{{
			Name:  "capture",
			Arity: 2,
			Handler: func(_ context.Context, args []value.Value) error {
				ch <- args
				return nil
			},
		}},
	}, ch
}

func receive(t *testing.T, ch <-chan []value.Value) []value.Value {
	t.Helper()
	select {
	case args := <-ch:
		return args
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for native call")
		return nil
	}
}

func newTestBridge(t *testing.T, rt *Runtime) (*bridge.Bridge, <-chan []value.Value) {
	t.Helper()
	b, err := bridge.New(rt, bridge.WithTimeout(5*time.Second))
	require.NoError(t, err)
	iface, ch := captureInterface()
	require.NoError(t, b.Setup(iface))
	return b, ch
}

func TestBridge_NativeCallDecodesArguments(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	_, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("call.js", `NativeBridge.capture({b: 1, a: [true, null, undefined], s: "x"});`))

	args := receive(t, ch)
	require.Len(t, args, 2)
	require.Equal(t, `{"b":1,"a":[true,null,null],"s":"x"}`, value.JSON(args[0]))
	require.True(t, args[1].IsNull(), "missing arguments pad with null")
}

func TestBridge_CallScriptFunction(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("fn.js", `NativeBridge.capture(function(n, label) { return label + ':' + (n * 2); });`))
	fn := receive(t, ch)[0]
	require.True(t, fn.IsFunction())

	id, ok := fn.FunctionID()
	require.True(t, ok)
	require.Equal(t, uint64(0), id)
	src, ok := fn.FunctionSource()
	require.True(t, ok)
	require.Contains(t, src, "return label")

	got, err := b.Call(context.Background(), fn, value.Int(21), value.String("n"))
	require.NoError(t, err)
	s, ok := got.AsString()
	require.True(t, ok)
	require.Equal(t, "n:42", s)
}

func TestBridge_ThrowingFunctionReportsNull(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("throw.js", `NativeBridge.capture(function() { throw new Error('nope'); });`))
	fn := receive(t, ch)[0]

	got, err := b.Call(context.Background(), fn)
	require.NoError(t, err)
	require.True(t, got.IsNull())

	// the slot is free again
	require.Equal(t, bridge.StateIdle, b.Correlator().State())
}

func TestBridge_CallbackArgumentsRoundTrip(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("echo.js", `NativeBridge.capture(function(v) { return v; });`))
	fn := receive(t, ch)[0]

	obj := value.NewObject()
	obj.Set("quote", value.String("it's\n"))
	obj.Set("list", value.Array(value.Int(1), value.Double(2.5), value.Bool(false), value.Null()))
	in := value.ObjectOf(obj)

	got, err := b.Call(context.Background(), fn, in)
	require.NoError(t, err)
	require.True(t, value.Equal(in, got), "got %s", value.JSON(got))
}

func TestBridge_FunctionReferencePassedBack(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("pair.js", `
		var adder = function(a, b) { return a + b; };
		NativeBridge.capture(function(f) { return f(2, 3); }, adder);
	`))
	args := receive(t, ch)
	apply, adder := args[0], args[1]
	require.True(t, adder.IsFunction())

	got, err := b.Call(context.Background(), apply, adder)
	require.NoError(t, err)
	require.True(t, value.Equal(value.Int(5), got))
}

func TestBridge_HandlerMayCallBack(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, err := bridge.New(rt, bridge.WithTimeout(5*time.Second))
	require.NoError(t, err)

	results := make(chan value.Value, 1)
	require.NoError(t, b.Setup(&bridge.Interface{
		Name: "Host",
		Operations: []bridge.Operation{{
			Name:  "echo",
			Arity: 2,
			Handler: func(ctx context.Context, args []value.Value) error {
				v, err := b.Call(ctx, args[1], args[0])
				if err != nil {
					return err
				}
				results <- v
				return nil
			},
		}},
	}))

	require.NoError(t, rt.LoadScript("echo.js", `NativeBridge.echo('ping', function(v) { return v + '/pong'; });`))

	select {
	case v := <-results:
		s, _ := v.AsString()
		require.Equal(t, "ping/pong", s)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never received its result")
	}
}

func TestBridge_CallFromLoopWouldDeadlock(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("fn.js", `NativeBridge.capture(function() { return 1; });`))
	fn := receive(t, ch)[0]

	var callErr error
	require.NoError(t, rt.RunOnLoopSync(func(*goja.Runtime) error {
		_, callErr = b.Call(context.Background(), fn)
		return nil
	}))
	require.ErrorIs(t, callErr, bridge.ErrWouldDeadlock)
}

func TestBridge_StaleFunctionAfterWrap(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t, WithFunctionCacheLimit(0))
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("first.js", `NativeBridge.capture(function() { return 'first'; });`))
	first := receive(t, ch)[0]
	require.NoError(t, rt.LoadScript("second.js", `NativeBridge.capture(function() { return 'second'; });`))
	second := receive(t, ch)[0]

	firstID, _ := first.FunctionID()
	secondID, _ := second.FunctionID()
	require.Equal(t, firstID, secondID)

	_, err := b.Call(context.Background(), first)
	require.ErrorIs(t, err, bridge.ErrStaleFunction)

	got, err := b.Call(context.Background(), second)
	require.NoError(t, err)
	s, _ := got.AsString()
	require.Equal(t, "second", s)
}

func TestRuntime_FunctionCacheCounterWraps(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	require.NoError(t, rt.SetFunctionCacheLimit(1))

	got, err := rt.Eval(`
		[function a() {}, function b() {}, function c() {}].map(function(f) {
			return JSON.parse(valueToBridgeString(f)).split(':')[1];
		}).join(',');
	`)
	require.NoError(t, err)
	require.Equal(t, "0,1,0", got)
	require.Equal(t, 2, rt.FunctionCacheLen())

	got, err = rt.Eval(`typeof __functionCache[0] + ',' + typeof __functionCache[5] + ',' + (0 in __functionCache)`)
	require.NoError(t, err)
	require.Equal(t, "function,undefined,true", got)

	require.Error(t, rt.SetFunctionCacheLimit(-1))
}

func TestRuntime_FunctionCacheRejectsNonFunctions(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	got, err := rt.Eval(`__functionCache[0] = 'not a function'; typeof __functionCache[0];`)
	require.NoError(t, err)
	require.Equal(t, "undefined", got)
	require.Equal(t, 0, rt.FunctionCacheLen())
}

func TestRuntime_ResultsWithoutSinkAreDropped(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	require.NotPanics(t, func() {
		_, err := rt.Eval(`__bridgePassResult(1)`)
		require.NoError(t, err)
	})
}

func TestBridge_CyclicResultReportsNull(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("cycle.js", `
		NativeBridge.capture(function() { var o = {n: 1}; o.self = o; return o; });
		NativeBridge.capture(function() { var a = [1]; a.push(a); return a; });
	`))
	objFn := receive(t, ch)[0]
	arrFn := receive(t, ch)[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := b.Call(ctx, objFn)
	require.NoError(t, err)
	require.Equal(t, `{"n":1,"self":null}`, value.JSON(got))

	got, err = b.Call(ctx, arrFn)
	require.NoError(t, err)
	require.Equal(t, `[1,null]`, value.JSON(got))

	require.Equal(t, bridge.StateIdle, b.Correlator().State())
	sum, err := rt.Eval("1 + 1")
	require.NoError(t, err)
	require.EqualValues(t, 2, sum)
}

func TestBridge_CyclicArgumentEncodesNull(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	_, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("cycle.js", `
		var o = {a: [1]};
		o.a.push(o);
		var shared = {x: 1};
		NativeBridge.capture(o, {p: shared, q: shared});
	`))
	args := receive(t, ch)
	require.Equal(t, `{"a":[1,null]}`, value.JSON(args[0]))
	require.Equal(t, `{"p":{"x":1},"q":{"x":1}}`, value.JSON(args[1]), "repeated but acyclic values are kept")
}

func TestBridge_UnencodableResultReportsNull(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("getter.js", `
		NativeBridge.capture(function() { return { get bad() { throw new Error('no'); } }; });
	`))
	fn := receive(t, ch)[0]

	got, err := b.Call(context.Background(), fn)
	require.NoError(t, err)
	require.True(t, got.IsNull())
	require.Equal(t, bridge.StateIdle, b.Correlator().State())
}

func legacyFunction(src string) value.Value {
	return value.String("function:" + base64.StdEncoding.EncodeToString([]byte(src)))
}

func TestBridge_BrokenLegacyFunctionNeverCallsPrevious(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, ch := newTestBridge(t, rt)

	require.NoError(t, rt.LoadScript("a.js", `NativeBridge.capture(function() { return 'A-was-called'; });`))
	fnA := receive(t, ch)[0]

	got, err := b.Call(context.Background(), fnA)
	require.NoError(t, err)
	s, _ := got.AsString()
	require.Equal(t, "A-was-called", s)

	broken := legacyFunction("function( { broken")
	require.True(t, broken.IsFunction())
	got, err = b.Call(context.Background(), broken)
	require.NoError(t, err)
	require.True(t, got.IsNull(), "got %s", value.JSON(got))

	// a broken legacy argument fails the call, not the dispatch
	got, err = b.Call(context.Background(), fnA, broken)
	require.NoError(t, err)
	require.True(t, got.IsNull(), "got %s", value.JSON(got))

	got, err = b.Call(context.Background(), legacyFunction("function(v) { return 'legacy:' + v; }"), value.Int(3))
	require.NoError(t, err)
	s, _ = got.AsString()
	require.Equal(t, "legacy:3", s)
	require.Equal(t, bridge.StateIdle, b.Correlator().State())
}

func TestBridge_SimilarPathsBindSeparately(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	b, err := bridge.New(rt)
	require.NoError(t, err)

	called := make(chan string, 2)
	op := func(label string) bridge.Operation {
		return bridge.Operation{
			Name: "run",
			Handler: func(context.Context, []value.Value) error {
				called <- label
				return nil
			},
		}
	}
	require.NoError(t, b.Setup(&bridge.Interface{
		Name: "Host",
		Children: []*bridge.Interface{
			{Name: "a", Children: []*bridge.Interface{{Name: "b", Operations: []bridge.Operation{op("a.b")}}}},
			{Name: "a_b", Operations: []bridge.Operation{op("a_b")}},
		},
	}))

	require.NoError(t, rt.LoadScript("paths.js", `NativeBridge.a.b.run(); NativeBridge.a_b.run();`))
	for _, want := range []string{"a.b", "a_b"} {
		select {
		case got := <-called:
			require.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for native call")
		}
	}
}
