package bridge

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Option configures a Correlator or a Bridge.
type Option interface {
	applyOption(*options) error
}

type optionFunc func(*options) error

func (f optionFunc) applyOption(o *options) error { return f(o) }

type options struct {
	logger    *slog.Logger
	timeout   time.Duration
	validator FunctionValidator
	detector  LoopDetector
	decoder   *value.Decoder
	prefix    string
}

func resolveOptions(opts []Option) (*options, error) {
	o := &options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(o); err != nil {
			return nil, err
		}
	}
	if o.decoder == nil {
		o.decoder = &value.Decoder{Logger: o.logger}
	}
	return o, nil
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	})
}

// WithTimeout abandons an awaited call that receives no result within d.
// Zero, the default, waits forever.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %v", d)
		}
		o.timeout = d
		return nil
	})
}

// WithFunctionValidator rejects references to reused function-table slots.
func WithFunctionValidator(v FunctionValidator) Option {
	return optionFunc(func(o *options) error {
		o.validator = v
		return nil
	})
}

// WithLoopDetector lets Call refuse to block on the script loop goroutine.
func WithLoopDetector(d LoopDetector) Option {
	return optionFunc(func(o *options) error {
		o.detector = d
		return nil
	})
}

// WithDecoder sets the decoder applied to reported results.
func WithDecoder(d *value.Decoder) Option {
	return optionFunc(func(o *options) error {
		if d == nil {
			return fmt.Errorf("decoder cannot be nil")
		}
		o.decoder = d
		return nil
	})
}

// WithPrefix sets the script-side root object that holds exported proxies.
func WithPrefix(prefix string) Option {
	return optionFunc(func(o *options) error {
		if !value.IsIdentifier(prefix) {
			return fmt.Errorf("invalid interface prefix %q", prefix)
		}
		o.prefix = prefix
		return nil
	})
}
