package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jward/mixweave"
)

var (
	flagCall    string
	flagArgs    []string
	flagKwargs  []string
	flagNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run <file.py>",
	Short: "Weave and run a module",
	Long: `Registers the declaration files, weaves the module and runs its body.
With --call, a module-level function is then invoked. Arguments are YAML
scalars or flow collections: 3, 2.5, true, hero, "[1, 2]", "{a: 1}".`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagCall, "call", "", "module-level function to call after the body runs")
	runCmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "positional argument for --call (repeatable)")
	runCmd.Flags().StringArrayVar(&flagKwargs, "kwarg", nil, "keyword argument name=value for --call (repeatable)")
	runCmd.Flags().BoolVar(&flagNoStore, "no-store", false, "do not record the module or traces in the database")
}

func runRun(cmd *cobra.Command, args []string) error {
	args0, kwargs, err := parseCallArgs(flagArgs, flagKwargs)
	if err != nil {
		return outputError("run", nil, err)
	}

	// Program output streams to stdout in text mode and is captured for the
	// JSON envelope otherwise.
	var captured bytes.Buffer
	var stdout io.Writer = os.Stdout
	if currentFormat() == "json" {
		stdout = &captured
	}

	e, err := newEngine(!flagNoStore, mixweave.WithStdout(stdout))
	if err != nil {
		return outputError("run", nil, err)
	}
	defer e.Close()

	ctx := context.Background()
	m, err := e.LoadFile(ctx, args[0])
	if err != nil {
		return outputError("run", nil, err)
	}
	if err := m.Exec(ctx); err != nil {
		return outputError("run", CLIRun{Module: m.Name, Stdout: captured.String()}, err)
	}

	res := CLIRun{Module: m.Name}
	if flagCall != "" {
		v, err := m.CallKw(ctx, flagCall, args0, kwargs)
		if err != nil {
			return outputError("run", CLIRun{Module: m.Name, Call: flagCall, Stdout: captured.String()}, err)
		}
		res.Call = flagCall
		res.Value = jsonValue(mixweave.ToGo(v))
		res.Repr = mixweave.Repr(v)
	}
	res.Stdout = captured.String()
	return outputResult(CLIResult{Command: "run", Results: res})
}

// parseCallArgs decodes --arg and --kwarg values as YAML.
func parseCallArgs(args, kwargs []string) ([]any, map[string]any, error) {
	pos := make([]any, 0, len(args))
	for _, a := range args {
		v, err := parseValue(a)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --arg %q: %w", a, err)
		}
		pos = append(pos, v)
	}
	var kw map[string]any
	for _, a := range kwargs {
		name, raw, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("invalid --kwarg %q: want name=value", a)
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --kwarg %q: %w", a, err)
		}
		if kw == nil {
			kw = make(map[string]any)
		}
		kw[name] = v
	}
	return pos, kw, nil
}

func parseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// jsonValue returns v when it encodes as JSON, and nil otherwise. Class
// instances and functions are only reported through their repr.
func jsonValue(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return nil
	}
	return v
}
