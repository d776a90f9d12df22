package host

import (
	_ "embed"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Script globals installed by the runtime.
const (
	FunctionIDCounterName = "__functionIDCounter"
	FunctionIDLimitName   = "__functionIDLimit"
	SupportName           = "__bridgeSupport"
)

//go:embed bootstrap.js
var bootstrapSource string

var bootstrapProgram = goja.MustCompile("bootstrap.js", bootstrapSource, false)

func (rt *Runtime) install(vm *goja.Runtime, limit int) error {
	console := vm.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := console.Set(name, rt.consoleMethod(level)); err != nil {
			return err
		}
	}

	support := vm.NewObject()
	if err := support.Set("passResult", func(raw string) { rt.deliver(raw) }); err != nil {
		return err
	}

	for name, v := range map[string]any{
		"console":               console,
		"btoa":                  btoa,
		"atob":                  atob(vm),
		value.FunctionCacheName: vm.NewDynamicObject(&functionCache{table: rt.functions}),
		FunctionIDCounterName:   0,
		FunctionIDLimitName:     limit,
		SupportName:             support,
	} {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}

	_, err := vm.RunProgram(bootstrapProgram)
	return err
}

func (rt *Runtime) consoleMethod(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		rt.logger.Log(rt.ctx, level, strings.Join(parts, " "), slog.String("source", "console"))
		return goja.Undefined()
	}
}

// btoa encodes the UTF-8 bytes of s, so any source text survives the trip.
func btoa(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func atob(vm *goja.Runtime) func(string) string {
	return func(s string) string {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			panic(vm.NewTypeError("atob: %v", err))
		}
		return string(b)
	}
}
