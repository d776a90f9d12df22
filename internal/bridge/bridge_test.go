package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

func noop(context.Context, []value.Value) error { return nil }

func testInterface() *Interface {
	return &Interface{
		Name: "Host",
		Operations: []Operation{
			{Name: "log", Arity: 1, Handler: noop},
		},
		Children: []*Interface{{
			Name:       "fs",
			Operations: []Operation{{Name: "read", Arity: 2, Handler: noop}},
		}},
	}
}

func TestBridge_SetupBindsAndInjects(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	b, err := New(h)
	require.NoError(t, err)
	require.NotEmpty(t, b.ID())
	require.Equal(t, DefaultPrefix, b.Exporter().Prefix())

	require.NoError(t, b.Setup(testInterface()))

	require.Contains(t, h.bound, "__Host")
	require.Contains(t, h.bound, "__Host_fs")
	require.Equal(t, []string{
		"var NativeBridge = { };",
		"NativeBridge.log = function(arg0) { __Host.log(valueToBridgeString(arg0)); };",
		"NativeBridge.fs = { };",
		"NativeBridge.fs.read = function(arg0, arg1) { __Host_fs.read(valueToBridgeString(arg0), valueToBridgeString(arg1)); };",
	}, h.injected())
}

func TestBridge_SetupBatchesProxies(t *testing.T) {
	t.Parallel()

	h := batchHost{newFakeHost()}
	b, err := New(h, WithPrefix("App"))
	require.NoError(t, err)
	require.NoError(t, b.Setup(testInterface()))
	require.Len(t, h.batches, 1)
	require.Equal(t, "var App = { };", h.batches[0][0])
}

func TestBridge_SetupRejectsInvalidInterface(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	b, err := New(h)
	require.NoError(t, err)

	bad := testInterface()
	bad.Operations = append(bad.Operations, Operation{Name: "fs", Arity: 0, Handler: noop})
	require.ErrorContains(t, b.Setup(bad), "duplicate")
	require.Empty(t, h.bound)
	require.Empty(t, h.injected())
}

func TestBridge_ResultSinkRoutesToCorrelator(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	b, err := New(h)
	require.NoError(t, err)

	results := make(chan value.Value, 1)
	require.NoError(t, b.Invoke(context.Background(), value.Function(7, "f"), nil, func(v value.Value) { results <- v }))
	h.report(`{"__rawValue": "done"}`)

	s, ok := (<-results).AsString()
	require.True(t, ok)
	require.Equal(t, "done", s)
}

func TestBridge_UsesHostCapabilities(t *testing.T) {
	t.Parallel()

	h := validatingHost{newFakeHost()}
	h.onLoop = true
	b, err := New(h)
	require.NoError(t, err)

	_, err = b.Call(context.Background(), value.Function(1, "f"))
	require.ErrorIs(t, err, ErrWouldDeadlock)
}

func TestNew_NilHost(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.Error(t, err)
}

func TestStatements(t *testing.T) {
	t.Parallel()

	stmts, err := Statements("", testInterface())
	require.NoError(t, err)
	require.Len(t, stmts, 4)
	require.Equal(t, "var NativeBridge = { };", stmts[0])

	_, err = Statements("", &Interface{Name: "bad name"})
	require.Error(t, err)

	_, err = Statements("not-valid", testInterface())
	require.Error(t, err)
}

func TestInterface_Validate(t *testing.T) {
	t.Parallel()

	for name, iface := range map[string]*Interface{
		"negative arity": {Name: "H", Operations: []Operation{{Name: "a", Arity: -1, Handler: noop}}},
		"nil handler":    {Name: "H", Operations: []Operation{{Name: "a"}}},
		"bad op name":    {Name: "H", Operations: []Operation{{Name: "a-b", Handler: noop}}},
		"duplicate op":   {Name: "H", Operations: []Operation{{Name: "a", Handler: noop}, {Name: "a", Handler: noop}}},
		"nil child":      {Name: "H", Children: []*Interface{nil}},
		"bad child name": {Name: "H", Children: []*Interface{{Name: "1x"}}},
	} {
		require.Error(t, iface.Validate(), name)
	}
	require.NoError(t, testInterface().Validate())
	require.NoError(t, (&Interface{Name: "Empty"}).Validate())
}
