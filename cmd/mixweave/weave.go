package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var flagShowSource bool

var weaveCmd = &cobra.Command{
	Use:   "weave <file.py>...",
	Short: "Weave modules and record their sites",
	Long:  "Registers the declaration files, weaves every module and records the woven modules and their sites in the SQLite database.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWeave,
}

func init() {
	weaveCmd.Flags().BoolVar(&flagShowSource, "source", false, "include the woven source of each module")
}

func runWeave(cmd *cobra.Command, args []string) error {
	start := time.Now()
	e, err := newEngine(true)
	if err != nil {
		return outputError("weave", nil, err)
	}
	defer e.Close()

	mods, loadErr := e.LoadFiles(context.Background(), args)

	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]CLIModule, 0, len(names))
	for _, name := range names {
		m := toCLIModule(mods[name])
		if flagShowSource {
			m.Source = mods[name].Source()
		}
		results = append(results, m)
	}

	fmt.Fprintf(os.Stderr, "Wove %d module(s) with %d injector(s) in %s\n",
		len(results), e.Injectors(), time.Since(start).Round(time.Millisecond))
	if loadErr != nil {
		return outputError("weave", results, loadErr)
	}
	return outputResult(CLIResult{Command: "weave", Results: results})
}
