package command

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joeycumines/go-jsbridge/internal/config"
)

// ConfigCommand manages configuration.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	showAll    bool
}

// NewConfigCommand creates a new config command. If configPath is empty, the
// default location is resolved when a value is set.
func NewConfigCommand(cfg *config.Config, configPath ...string) *ConfigCommand {
	var path string
	if len(configPath) > 0 {
		path = configPath[0]
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [section.key] [value]",
		),
		config:     cfg,
		configPath: path,
	}
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showAll, "all", false, "Show every value set in the configuration file")
}

func (c *ConfigCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		if c.showAll {
			c.printAll(stdout)
			return nil
		}
		_, _ = fmt.Fprintln(stdout, "Configuration management:")
		_, _ = fmt.Fprintln(stdout, "  config <section.key>          - Get configuration value")
		_, _ = fmt.Fprintln(stdout, "  config <section.key> <value>  - Set configuration value")
		_, _ = fmt.Fprintln(stdout, "  config --all                  - Show all configuration")
		_, _ = fmt.Fprintln(stdout, "  config validate               - Validate configuration")
		_, _ = fmt.Fprintln(stdout, "  config schema                 - Show configuration schema")
		_, _ = fmt.Fprintln(stdout, "  config settings               - Show effective settings")
		_, _ = fmt.Fprintln(stdout, "  config path                   - Show configuration file path")
		return nil
	}

	switch args[0] {
	case "validate":
		return c.executeValidate(stdout)
	case "schema":
		_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
		return nil
	case "settings":
		return c.executeSettings(stdout)
	case "path":
		path, err := c.path()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, path)
		return nil
	}

	section, key := splitKey(args[0])

	switch len(args) {
	case 1:
		// env, then file, then schema default
		if opt := config.DefaultSchema().Lookup(section, key); opt != nil {
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", args[0], config.DefaultSchema().Resolve(c.config, section, key))
		} else if v, ok := c.config.Get(section, key); ok {
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", args[0], v)
		} else {
			_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", args[0])
		}
		return nil

	case 2:
		value := args[1]
		if !config.DefaultSchema().IsKnown(section, key) {
			_, _ = fmt.Fprintf(stderr, "Warning: %q is not a known option\n", args[0])
		}
		c.config.Set(section, key, value)

		path, err := c.path()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
		} else if err := config.SetKeyInFile(path, section, key, value); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
		}

		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", args[0], value)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return fmt.Errorf("invalid arguments")
}

func (c *ConfigCommand) path() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return config.Path()
}

func (c *ConfigCommand) printAll(stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, "Global configuration:")
	printOptions(stdout, "  ", c.config.Global)

	sections := make([]string, 0, len(c.config.Sections))
	for name := range c.config.Sections {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		_, _ = fmt.Fprintf(stdout, "\n[%s]\n", name)
		printOptions(stdout, "  ", c.config.Sections[name])
	}
}

func printOptions(w io.Writer, indent string, options map[string]string) {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, k, options[k])
	}
}

func (c *ConfigCommand) executeValidate(stdout io.Writer) error {
	issues := config.ValidateConfig(c.config, config.DefaultSchema())
	if _, err := config.Resolve(c.config); err != nil {
		issues = append(issues, strings.Split(err.Error(), "\n")...)
	}
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}

func (c *ConfigCommand) executeSettings(stdout io.Writer) error {
	s, err := config.Resolve(c.config)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s.%s: %d\n", config.SectionBridge, config.KeyFunctionCacheLimit, s.FunctionCacheLimit)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %s\n", config.SectionBridge, config.KeyInterfacePrefix, s.InterfacePrefix)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %s\n", config.SectionBridge, config.KeyCallTimeout, s.CallTimeout)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %t\n", config.SectionBridge, config.KeyStrictComposites, s.StrictComposites)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %s\n", config.SectionLog, config.KeyLogLevel, s.LogLevel)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %s\n", config.SectionLog, config.KeyLogFormat, s.LogFormat)
	_, _ = fmt.Fprintf(stdout, "%s.%s: %d\n", config.SectionLog, config.KeyLogBuffer, s.LogBuffer)
	return nil
}

// splitKey turns "section.key" into its parts. A key without a dot is global.
func splitKey(s string) (section, key string) {
	if section, key, ok := strings.Cut(s, "."); ok {
		return section, key
	}
	return "", s
}

// InitCommand writes a commented default configuration file.
type InitCommand struct {
	*BaseCommand
	configPath string
	force      bool
}

// NewInitCommand creates a new init command. configPath overrides the default
// location.
func NewInitCommand(configPath ...string) *InitCommand {
	var path string
	if len(configPath) > 0 {
		path = configPath[0]
	}
	return &InitCommand{
		BaseCommand: NewBaseCommand(
			"init",
			"Write a default configuration file",
			"init [options]",
		),
		configPath: path,
	}
}

func (c *InitCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Overwrite an existing configuration file")
}

func (c *InitCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := noArgs(args, stderr); err != nil {
		return err
	}
	path := c.configPath
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil && !c.force {
		_, _ = fmt.Fprintf(stdout, "Configuration already exists at: %s\n", path)
		_, _ = fmt.Fprintln(stdout, "Use -force to overwrite existing configuration")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigFile()), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Configuration written to: %s\n", path)
	return nil
}

// DefaultConfigFile renders the schema as a config file with every option
// commented out at its default.
func DefaultConfigFile() string {
	var b strings.Builder
	b.WriteString("# jsbridge configuration file\n")
	b.WriteString("# Format: optionName remainingLineIsTheValue\n")
	b.WriteString("# Use [section] headers for grouped options\n")

	s := config.DefaultSchema()
	for _, section := range s.Sections() {
		b.WriteString("\n")
		if section != "" {
			fmt.Fprintf(&b, "[%s]\n", section)
		}
		for _, opt := range s.Options(section) {
			fmt.Fprintf(&b, "# %s\n", opt.Description)
			fmt.Fprintf(&b, "# %s %s\n", opt.Key, opt.Default)
		}
	}
	return b.String()
}
