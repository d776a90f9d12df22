package command

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/go-jsbridge/internal/bridge"
	"github.com/joeycumines/go-jsbridge/internal/config"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// readInput returns args joined by spaces, or all of stdin when args is
// empty or "-". A single trailing newline is dropped.
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	if stdin == nil {
		return "", errors.New("no input")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// EncodeCommand prints the script literal for a JSON document.
type EncodeCommand struct {
	*BaseCommand
	config *config.Config
	stdin  io.Reader
	strict bool
	asArgs bool
}

// NewEncodeCommand creates a new encode command.
func NewEncodeCommand(cfg *config.Config) *EncodeCommand {
	return &EncodeCommand{
		BaseCommand: NewBaseCommand(
			"encode",
			"Convert a JSON document to a script literal",
			"encode [options] [json|-]",
		),
		config: cfg,
		stdin:  os.Stdin,
	}
}

func (c *EncodeCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.strict, "strict", strictDefault(c.config), "Decode a composite with a malformed member as null")
	fs.BoolVar(&c.asArgs, "args", false, "Treat a top-level array as an argument list")
}

// strictDefault is the configured strict-composites setting, false if the
// configuration does not resolve.
func strictDefault(cfg *config.Config) bool {
	s, err := config.Resolve(cfg)
	return err == nil && s.StrictComposites
}

func (c *EncodeCommand) Execute(args []string, stdout, stderr io.Writer) error {
	input, err := readInput(args, c.stdin)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(input)) {
		_, _ = fmt.Fprintln(stderr, "input is not valid JSON")
		return errors.New("invalid input")
	}

	v := (&value.Decoder{Strict: c.strict}).Decompose([]byte(input))
	if c.asArgs {
		items, ok := v.AsArray()
		if !ok {
			_, _ = fmt.Fprintln(stderr, "-args requires a JSON array")
			return errors.New("invalid input")
		}
		_, _ = fmt.Fprintln(stdout, value.Literals(items))
		return nil
	}
	_, _ = fmt.Fprintln(stdout, value.Literal(v))
	return nil
}

// DecodeCommand shows how wire text decodes.
type DecodeCommand struct {
	*BaseCommand
	config   *config.Config
	stdin    io.Reader
	strict   bool
	envelope bool
}

// NewDecodeCommand creates a new decode command.
func NewDecodeCommand(cfg *config.Config) *DecodeCommand {
	return &DecodeCommand{
		BaseCommand: NewBaseCommand(
			"decode",
			"Show the kind and canonical JSON of bridge wire text",
			"decode [options] [text|-]",
		),
		config: cfg,
		stdin:  os.Stdin,
	}
}

func (c *DecodeCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.strict, "strict", strictDefault(c.config), "Decode a composite with a malformed member as null")
	fs.BoolVar(&c.envelope, "envelope", false, "Also print the result envelope the script side would send")
}

func (c *DecodeCommand) Execute(args []string, stdout, stderr io.Writer) error {
	input, err := readInput(args, c.stdin)
	if err != nil {
		return err
	}

	v := (&value.Decoder{Strict: c.strict}).Parse(input)
	_, _ = fmt.Fprintf(stdout, "kind: %s\n", v.Kind())
	_, _ = fmt.Fprintf(stdout, "json: %s\n", value.JSON(v))
	if v.IsFunction() {
		if id, ok := v.FunctionID(); ok {
			_, _ = fmt.Fprintf(stdout, "id: %d\n", id)
		}
		if src, ok := v.FunctionSource(); ok {
			_, _ = fmt.Fprintf(stdout, "source: %s\n", src)
		}
	}
	_, _ = fmt.Fprintf(stdout, "literal: %s\n", value.Literal(v))
	if c.envelope {
		_, _ = fmt.Fprintf(stdout, "envelope: %s\n", value.Envelope(v))
	}
	return nil
}

// ExportCommand prints the proxy statements for the built-in Host interface.
type ExportCommand struct {
	*BaseCommand
	config *config.Config
	prefix string
}

// NewExportCommand creates a new export command.
func NewExportCommand(cfg *config.Config) *ExportCommand {
	return &ExportCommand{
		BaseCommand: NewBaseCommand(
			"export",
			"Print the script statements that expose the Host interface",
			"export [options]",
		),
		config: cfg,
	}
}

func (c *ExportCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.prefix, "prefix", "", "Script object that holds the proxies (default from config)")
}

func (c *ExportCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := noArgs(args, stderr); err != nil {
		return err
	}
	prefix := c.prefix
	if prefix == "" {
		s, err := config.Resolve(c.config)
		if err != nil {
			return err
		}
		prefix = s.InterfacePrefix
	}

	stmts, err := bridge.Statements(prefix, (&hostAPI{}).Interface())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		_, _ = fmt.Fprintln(stdout, stmt)
	}
	return nil
}
