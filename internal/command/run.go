package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dop251/goja_nodejs/require"

	"github.com/joeycumines/go-jsbridge/internal/bridge"
	"github.com/joeycumines/go-jsbridge/internal/config"
	"github.com/joeycumines/go-jsbridge/internal/host"
	"github.com/joeycumines/go-jsbridge/internal/logging"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// RunCommand executes a script with the built-in Host interface installed.
type RunCommand struct {
	*BaseCommand
	config *config.Config
	stdin  io.Reader
	fs     *flag.FlagSet

	// baseContext is the parent of the run's context; tests replace it.
	baseContext func() context.Context

	timeout            time.Duration
	callTimeout        time.Duration
	functionCacheLimit int
	prefix             string
	strict             bool
	logLevel           string
	logFormat          string
	logBuffer          int
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run a script against the built-in Host interface",
			"run [options] <script.js|->",
		),
		config:      cfg,
		stdin:       os.Stdin,
		baseContext: context.Background,
	}
}

func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.fs = fs
	fs.DurationVar(&c.timeout, "timeout", 0, "Stop the script after this long (0 waits for exit)")
	fs.DurationVar(&c.callTimeout, "call-timeout", 0, "Abandon an awaited callback after this long (overrides config)")
	fs.IntVar(&c.functionCacheLimit, "function-cache-limit", 0, "Highest function id before ids wrap (overrides config)")
	fs.StringVar(&c.prefix, "prefix", "", "Script object that holds the Host proxies (overrides config)")
	fs.BoolVar(&c.strict, "strict", false, "Decode a composite with a malformed member as null (overrides config)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: text, json (overrides config)")
	fs.IntVar(&c.logBuffer, "log-buffer", 0, "Recent log entries kept and printed if the run fails (overrides config)")
}

// settings resolves configuration, then applies any flags that were set.
func (c *RunCommand) settings() (*config.Settings, error) {
	s, err := config.Resolve(c.config)
	if err != nil {
		return nil, err
	}
	if c.fs == nil {
		return s, nil
	}
	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "call-timeout":
			s.CallTimeout = c.callTimeout
		case "function-cache-limit":
			s.FunctionCacheLimit = c.functionCacheLimit
		case "prefix":
			s.InterfacePrefix = c.prefix
		case "strict":
			s.StrictComposites = c.strict
		case "log-level":
			s.LogLevel = c.logLevel
		case "log-format":
			s.LogFormat = c.logFormat
		case "log-buffer":
			s.LogBuffer = c.logBuffer
		}
	})
	if s.FunctionCacheLimit < 0 || s.CallTimeout < 0 || s.LogBuffer < 0 {
		return nil, errors.New("negative limits are not allowed")
	}
	if !value.IsIdentifier(s.InterfacePrefix) {
		return nil, fmt.Errorf("invalid interface prefix: %q", s.InterfacePrefix)
	}
	return s, nil
}

func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: jsbridge %s\n", c.Usage())
		return errors.New("expected exactly one script")
	}

	s, err := c.settings()
	if err != nil {
		return err
	}
	name, src, err := c.readScript(args[0])
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(s.LogFormat)
	if err != nil {
		return err
	}
	handler := logging.NewHandler(stderr, level, format)
	var recorder *logging.Recorder
	if s.LogBuffer > 0 {
		recorder = logging.NewRecorder(s.LogBuffer, slog.LevelDebug)
		handler = logging.Tee(handler, recorder)
	}
	logger := slog.New(handler)

	err = c.run(logger, s, name, src, stdout)
	if err != nil && recorder != nil {
		dumpEntries(stderr, recorder.Entries())
	}
	return err
}

func (c *RunCommand) readScript(arg string) (name, src string, err error) {
	if arg == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return "<stdin>", string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("failed to read script: %w", err)
	}
	return arg, string(data), nil
}

func (c *RunCommand) run(logger *slog.Logger, s *config.Settings, name, src string, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(c.baseContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var registryOpts []require.Option
	if name != "<stdin>" {
		if dir, err := filepath.Abs(filepath.Dir(name)); err == nil {
			registryOpts = append(registryOpts, require.WithGlobalFolders(dir))
		}
	}
	decoder := &value.Decoder{Logger: logger, Strict: s.StrictComposites}

	rt, err := host.NewRuntime(ctx,
		host.WithLogger(logger),
		host.WithRegistry(require.NewRegistry(registryOpts...)),
		host.WithFunctionCacheLimit(s.FunctionCacheLimit),
		host.WithDecoder(decoder),
	)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	b, err := bridge.New(rt,
		bridge.WithLogger(logger),
		bridge.WithTimeout(s.CallTimeout),
		bridge.WithPrefix(s.InterfacePrefix),
		bridge.WithDecoder(decoder),
	)
	if err != nil {
		return err
	}

	api := newHostAPI(logger, stdout)
	api.bridge = b
	if err := b.Setup(api.Interface()); err != nil {
		return fmt.Errorf("failed to install host interface: %w", err)
	}

	logger.Debug("running script", slog.String("script", name), slog.String("bridge", b.ID()))
	if err := rt.LoadScript(name, src); err != nil {
		return fmt.Errorf("script failed: %w", err)
	}

	select {
	case code := <-api.exit:
		logger.Debug("script exited", slog.Int("code", code))
		if code != 0 {
			return &ExitError{Code: code}
		}
		return nil
	case <-ctx.Done():
	case <-rt.Done():
	}

	// the runtime also stops when ctx ends
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("script did not exit within %s", c.timeout)
	case ctx.Err() != nil:
		return &ExitError{Code: 130}
	}
	return host.ErrNotRunning
}

func dumpEntries(w io.Writer, entries []logging.Entry) {
	if len(entries) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "--- last %d log entries ---\n", len(entries))
	for _, e := range entries {
		var b strings.Builder
		b.WriteString(e.Time.Format(time.RFC3339Nano))
		b.WriteString(" ")
		b.WriteString(e.Level.String())
		b.WriteString(" ")
		b.WriteString(e.Message)
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
		}
		_, _ = fmt.Fprintln(w, b.String())
	}
}
