package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/go-jsbridge/internal/command"
	"github.com/joeycumines/go-jsbridge/internal/config"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		// a missing or unreadable file means defaults
		cfg = config.NewConfig()
	}
	return newRegistry(cfg).Dispatch(args, stdout, stderr)
}

func newRegistry(cfg *config.Config) *command.Registry {
	registry := command.NewRegistry()
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg))
	registry.Register(command.NewInitCommand())
	registry.Register(command.NewRunCommand(cfg))
	registry.Register(command.NewEncodeCommand(cfg))
	registry.Register(command.NewDecodeCommand(cfg))
	registry.Register(command.NewExportCommand(cfg))
	return registry
}
