package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joeycumines/go-jsbridge/internal/bridge"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// HostInterfaceName is the native object the built-in operations bind to.
const HostInterfaceName = "Host"

// hostAPI implements the operations scripts reach as <prefix>.log,
// <prefix>.echo and <prefix>.exit.
type hostAPI struct {
	bridge *bridge.Bridge
	logger *slog.Logger

	mu  sync.Mutex
	out io.Writer

	exitOnce sync.Once
	exit     chan int
}

func newHostAPI(logger *slog.Logger, out io.Writer) *hostAPI {
	return &hostAPI{
		logger: logger,
		out:    out,
		exit:   make(chan int, 1),
	}
}

// Interface describes the operations for export and binding.
func (h *hostAPI) Interface() *bridge.Interface {
	return &bridge.Interface{
		Name: HostInterfaceName,
		Operations: []bridge.Operation{
			{Name: "log", Arity: 1, Handler: h.log},
			{Name: "echo", Arity: 2, Handler: h.echo},
			{Name: "exit", Arity: 1, Handler: h.requestExit},
		},
	}
}

// log writes a line of script output. Strings print as-is, anything else as
// canonical JSON.
func (h *hostAPI) log(_ context.Context, args []value.Value) error {
	text, ok := args[0].AsString()
	if !ok {
		text = value.JSON(args[0])
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, text)
	return err
}

// echo calls back into the script with the value it was given and waits for
// the callback's result.
func (h *hostAPI) echo(ctx context.Context, args []value.Value) error {
	result, err := h.bridge.Call(ctx, args[1], args[0])
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	h.logger.Info("echo result", slog.String("value", value.JSON(result)))
	return nil
}

// requestExit records the first exit code. Non-integer codes exit with 1.
func (h *hostAPI) requestExit(_ context.Context, args []value.Value) error {
	code := 0
	if !args[0].IsNull() {
		n, ok := args[0].AsInt()
		if !ok {
			n = 1
		}
		code = int(n)
	}
	h.exitOnce.Do(func() {
		h.exit <- code
	})
	return nil
}
