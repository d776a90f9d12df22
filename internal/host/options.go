package host

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dop251/goja_nodejs/require"

	"github.com/joeycumines/go-jsbridge/internal/functable"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Option configures a Runtime.
type Option interface {
	applyOption(*options) error
}

type optionFunc func(*options) error

func (f optionFunc) applyOption(o *options) error { return f(o) }

type options struct {
	logger      *slog.Logger
	registry    *require.Registry
	syncTimeout time.Duration
	cacheLimit  int
	maxStack    int
	decoder     *value.Decoder
}

func resolveOptions(opts []Option) (*options, error) {
	o := &options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		syncTimeout: DefaultSyncTimeout,
		cacheLimit:  functable.DefaultLimit,
		maxStack:    DefaultMaxCallStackSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(o); err != nil {
			return nil, err
		}
	}
	if o.registry == nil {
		o.registry = require.NewRegistry()
	}
	if o.decoder == nil {
		o.decoder = &value.Decoder{Logger: o.logger}
	}
	return o, nil
}

// WithLogger sets the logger that receives runtime diagnostics and script
// console output.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	})
}

// WithRegistry shares an existing require registry with the runtime.
func WithRegistry(registry *require.Registry) Option {
	return optionFunc(func(o *options) error {
		o.registry = registry
		return nil
	})
}

// WithSyncTimeout bounds RunOnLoopSync. Zero disables the bound.
func WithSyncTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) error {
		if d < 0 {
			return fmt.Errorf("sync timeout must not be negative, got %v", d)
		}
		o.syncTimeout = d
		return nil
	})
}

// WithFunctionCacheLimit sets the highest function id the script side hands
// out before wrapping back to zero.
func WithFunctionCacheLimit(limit int) Option {
	return optionFunc(func(o *options) error {
		if limit < 0 {
			return fmt.Errorf("function cache limit must not be negative, got %d", limit)
		}
		o.cacheLimit = limit
		return nil
	})
}

// WithDecoder sets the decoder applied to native call arguments.
func WithDecoder(d *value.Decoder) Option {
	return optionFunc(func(o *options) error {
		if d == nil {
			return fmt.Errorf("decoder cannot be nil")
		}
		o.decoder = d
		return nil
	})
}

// WithMaxCallStackSize bounds script call depth. Runaway recursion on the loop
// then fails with a stack overflow instead of growing without limit.
func WithMaxCallStackSize(size int) Option {
	return optionFunc(func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("max call stack size must be positive, got %d", size)
		}
		o.maxStack = size
		return nil
	})
}
