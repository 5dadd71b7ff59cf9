package main

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/mixweave"
	"github.com/jward/mixweave/demo"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the embedded demo game with its injectors",
	Long:  "Weaves the embedded demo game with its embedded declaration file and runs it. --decl files are ignored; --db records the demo like any other module.",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return outputError("demo", nil, err)
	}

	var captured bytes.Buffer
	var stdout io.Writer = os.Stdout
	if currentFormat() == "json" {
		stdout = &captured
	}

	opts := []mixweave.Option{
		mixweave.WithLogger(logger),
		mixweave.WithStdout(stdout),
		mixweave.WithTrace(cfg.Trace),
	}
	if cfg.DumpDir != "" {
		opts = append(opts, mixweave.WithDumpDir(cfg.DumpDir))
	}
	if cfg.DB != "" {
		dbPath, err := ensureDBPath()
		if err != nil {
			return outputError("demo", nil, err)
		}
		opts = append(opts, mixweave.WithStore(dbPath))
	}

	m, err := demo.Run(context.Background(), opts...)
	if err != nil {
		return outputError("demo", CLIRun{Module: demo.Module, Stdout: captured.String()}, err)
	}
	return outputResult(CLIResult{Command: "demo", Results: CLIRun{Module: m.Name, Stdout: captured.String()}})
}
