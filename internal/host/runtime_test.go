package host

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRuntime_Lifecycle(t *testing.T) {
	t.Parallel()

	rt, err := NewRuntime(context.Background())
	require.NoError(t, err)
	require.True(t, rt.IsRunning())

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	require.False(t, rt.IsRunning())

	select {
	case <-rt.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	require.ErrorIs(t, rt.Inject("1"), ErrNotRunning)
	require.ErrorIs(t, rt.RunOnLoopSync(func(*goja.Runtime) error { return nil }), ErrNotRunning)
	require.False(t, rt.RunOnLoop(func(*goja.Runtime) {}))
}

func TestRuntime_StopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	rt, err := NewRuntime(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case <-rt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop with its context")
	}
	require.Eventually(t, func() bool { return !rt.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestNewRuntime_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := NewRuntime(context.Background(), WithLogger(nil))
	require.Error(t, err)
	_, err = NewRuntime(context.Background(), WithSyncTimeout(-1))
	require.Error(t, err)
	_, err = NewRuntime(context.Background(), WithFunctionCacheLimit(-1))
	require.Error(t, err)
	_, err = NewRuntime(context.Background(), WithDecoder(nil))
	require.Error(t, err)
	_, err = NewRuntime(context.Background(), WithMaxCallStackSize(0))
	require.Error(t, err)
}

func TestRuntime_MaxCallStackSize(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t, WithMaxCallStackSize(100))

	_, err := rt.Eval(`function down(n) { return down(n + 1); } down(0);`)
	var overflow *goja.StackOverflowError
	require.ErrorAs(t, err, &overflow)

	got, err := rt.Eval(`1 + 1`)
	require.NoError(t, err)
	require.EqualValues(t, 2, got)
}

func TestRuntime_OnLoop(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	require.False(t, rt.OnLoop())

	var onLoop bool
	require.NoError(t, rt.RunOnLoopSync(func(*goja.Runtime) error {
		onLoop = rt.OnLoop()
		return nil
	}))
	require.True(t, onLoop)
}

func TestRuntime_TryRunOnLoopSyncReenters(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	var inner bool
	require.NoError(t, rt.RunOnLoopSync(func(*goja.Runtime) error {
		return rt.TryRunOnLoopSync(func(*goja.Runtime) error {
			inner = true
			return nil
		})
	}))
	require.True(t, inner)
}

func TestRuntime_SyncTimeout(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t, WithSyncTimeout(20*time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	err := rt.RunOnLoopSync(func(*goja.Runtime) error {
		<-release
		return nil
	})
	require.ErrorContains(t, err, "timed out")
}

func TestRuntime_LoadScriptAndEval(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	require.NoError(t, rt.LoadScript("setup.js", "var answer = 6 * 7;"))

	got, err := rt.Eval("answer")
	require.NoError(t, err)
	require.EqualValues(t, 42, got)

	require.ErrorContains(t, rt.LoadScript("broken.js", "var = ;"), "failed to compile broken.js")
	require.ErrorContains(t, rt.LoadScript("throws.js", "throw new Error('boom')"), "boom")
}

func TestRuntime_ConsoleForwardsToLogger(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rt := newTestRuntime(t, WithLogger(logger))

	require.NoError(t, rt.LoadScript("console.js", `
		console.log('hello', 'world', 3);
		console.warn('careful');
		console.debug('details');
	`))

	out := buf.String()
	require.Contains(t, out, `level=INFO msg="hello world 3" source=console`)
	require.Contains(t, out, `level=WARN msg=careful source=console`)
	require.Contains(t, out, `level=DEBUG msg=details source=console`)
}

func TestRuntime_Base64Globals(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)

	got, err := rt.Eval(`btoa('hi')`)
	require.NoError(t, err)
	require.Equal(t, "aGk=", got)

	got, err = rt.Eval(`atob(btoa('función ✓'))`)
	require.NoError(t, err)
	require.Equal(t, "función ✓", got)

	_, err = rt.Eval(`atob('%%%')`)
	require.Error(t, err)
}

func TestRuntime_InjectBatchRunsEveryStatement(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	rt := newTestRuntime(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	require.NoError(t, rt.InjectBatch("var a = 1;", "undefinedFunction();", "var b = a + 1;"))

	got, err := rt.Eval("b")
	require.NoError(t, err)
	require.EqualValues(t, 2, got)
	require.Contains(t, buf.String(), "injected script failed")
}

func TestRuntime_ValueModule(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	got, err := rt.Eval(`
		var v = require('jsbridge:value');
		[
			v.kind('{"__rawValue": 5}'),
			v.kind('"function:1:Zg=="'),
			v.toJSON('{"__rawValue": {"b":1,"a":[true,null]}}'),
			v.toLiteral('"it\'s"'),
			v.kind(undefined),
		].join('|');
	`)
	require.NoError(t, err)
	require.Equal(t, `int|function|{"b":1,"a":[true,null]}|'it\'s'|null`, got)
}
