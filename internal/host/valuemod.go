package host

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// ValueModuleName is the require() name of the native value helpers.
const ValueModuleName = "jsbridge:value"

// valueModule lets scripts see bridge text the way the host decodes it.
func valueModule(decoder *value.Decoder) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)

		decode := func(call goja.FunctionCall) value.Value {
			arg := call.Argument(0)
			if goja.IsUndefined(arg) || goja.IsNull(arg) {
				return value.Null()
			}
			return decoder.Parse(arg.String())
		}

		// kind(text: string): string
		_ = exports.Set("kind", func(call goja.FunctionCall) goja.Value {
			return runtime.ToValue(decode(call).Kind().String())
		})

		// toJSON(text: string): string
		_ = exports.Set("toJSON", func(call goja.FunctionCall) goja.Value {
			return runtime.ToValue(value.JSON(decode(call)))
		})

		// toLiteral(text: string): string
		_ = exports.Set("toLiteral", func(call goja.FunctionCall) goja.Value {
			return runtime.ToValue(value.Literal(decode(call)))
		})
	}
}
