package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType is the expected type of an option value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// Option declares one configuration option.
type Option struct {
	// Key as it appears in the config file (kebab-case)
	Key     string
	Type    OptionType
	Default string
	// Section is "" for global options
	Section     string
	Description string
	// EnvVar overrides the file value when set
	EnvVar string
}

// Schema declares the known configuration options.
type Schema struct {
	options   []*Option
	bySection map[string]map[string]*Option
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{bySection: make(map[string]map[string]*Option)}
}

// Register adds opt. A later registration of the same section and key wins.
func (s *Schema) Register(opts ...Option) {
	for _, opt := range opts {
		ref := new(Option)
		*ref = opt
		s.options = append(s.options, ref)
		if s.bySection[opt.Section] == nil {
			s.bySection[opt.Section] = make(map[string]*Option)
		}
		s.bySection[opt.Section][opt.Key] = ref
	}
}

// Lookup returns the option for key in section, or nil.
func (s *Schema) Lookup(section, key string) *Option {
	return s.bySection[section][key]
}

// IsKnown reports whether key may appear in section. Global options are
// accepted in any section.
func (s *Schema) IsKnown(section, key string) bool {
	return s.Lookup(section, key) != nil || s.Lookup("", key) != nil
}

// Options returns the options registered for section, in registration order.
func (s *Schema) Options(section string) []Option {
	var out []Option
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted names of sections with registered options.
func (s *Schema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		if sec != "" {
			out = append(out, sec)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value of key in section: the option's
// environment variable if set, then the config file, then the default.
func (s *Schema) Resolve(c *Config, section, key string) string {
	opt := s.Lookup(section, key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.Get(section, key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig lists unknown options and type mismatches, sorted.
func ValidateConfig(c *Config, s *Schema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Sections {
		for key, value := range opts {
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
				continue
			}
			if err := validateType(opt.Type, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// FormatHelp renders every option, grouped by section.
func (s *Schema) FormatHelp() string {
	var b strings.Builder
	if globals := s.Options(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] Options:\n", sec)
		for _, o := range s.Options(sec) {
			writeOptionHelp(&b, o)
		}
	}
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o Option) {
	fmt.Fprintf(b, "  %-24s %s", o.Key, o.Description)
	var parts []string
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, "type: "+string(o.Type))
	}
	if o.Default != "" {
		parts = append(parts, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		parts = append(parts, "env: "+o.EnvVar)
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// Sections and keys of the jsbridge options.
const (
	SectionBridge = "bridge"
	SectionLog    = "log"

	KeyFunctionCacheLimit = "function-cache-limit"
	KeyInterfacePrefix    = "interface-prefix"
	KeyCallTimeout        = "call-timeout"
	KeyStrictComposites   = "strict-composites"

	KeyLogLevel  = "level"
	KeyLogFormat = "format"
	KeyLogBuffer = "buffer"
)

// DefaultSchema declares every option jsbridge understands.
func DefaultSchema() *Schema {
	s := NewSchema()
	s.Register(
		Option{Section: SectionBridge, Key: KeyFunctionCacheLimit, Type: TypeInt, Default: "200",
			Description: "Highest function id handed out before ids wrap to 0", EnvVar: "JSBRIDGE_FUNCTION_CACHE_LIMIT"},
		Option{Section: SectionBridge, Key: KeyInterfacePrefix, Type: TypeString, Default: "NativeBridge",
			Description: "Script object that holds exported proxies"},
		Option{Section: SectionBridge, Key: KeyCallTimeout, Type: TypeDuration, Default: "0s",
			Description: "Abandon an awaited call after this long, 0 waits forever", EnvVar: "JSBRIDGE_CALL_TIMEOUT"},
		Option{Section: SectionBridge, Key: KeyStrictComposites, Type: TypeBool, Default: "false",
			Description: "Decode a composite with a malformed member as null"},

		Option{Section: SectionLog, Key: KeyLogLevel, Type: TypeString, Default: "info",
			Description: "Log level: debug, info, warn, error", EnvVar: "JSBRIDGE_LOG_LEVEL"},
		Option{Section: SectionLog, Key: KeyLogFormat, Type: TypeString, Default: "text",
			Description: "Log format: text, json", EnvVar: "JSBRIDGE_LOG_FORMAT"},
		Option{Section: SectionLog, Key: KeyLogBuffer, Type: TypeInt, Default: "1000",
			Description: "In-memory log buffer size (entries)"},
	)
	return s
}
