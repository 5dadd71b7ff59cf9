package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/mixweave/internal/store"
)

var sitesCmd = &cobra.Command{
	Use:   "sites [module]",
	Short: "List woven modules, or the sites of one module",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSites,
}

var (
	flagTarget string
	flagMember string
	flagSite   string
	flagLimit  int
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List recorded callback invocations",
	Long:  "Lists the callback invocations recorded by 'mixweave run --trace', oldest first.",
	Args:  cobra.NoArgs,
	RunE:  runTraces,
}

var dropCmd = &cobra.Command{
	Use:   "drop <module>...",
	Short: "Remove woven modules with their sites and traces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDrop,
}

func init() {
	sitesCmd.Flags().StringVar(&flagTarget, "target", "", "list the sites woven into this target instead")
	sitesCmd.Flags().StringVar(&flagMember, "member", "", "narrow --target to one member")

	tracesCmd.Flags().StringVar(&flagTarget, "target", "", "filter by target")
	tracesCmd.Flags().StringVar(&flagMember, "member", "", "filter by member")
	tracesCmd.Flags().StringVar(&flagSite, "site", "", "filter by site id")
	tracesCmd.Flags().IntVar(&flagLimit, "limit", 100, "maximum number of traces (0: all)")
}

func runSites(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("sites", nil, err)
	}
	defer s.Close()

	switch {
	case flagTarget != "":
		sites, err := s.SitesByTarget(flagTarget, flagMember)
		if err != nil {
			return outputError("sites", nil, err)
		}
		return outputResult(CLIResult{Command: "sites", Results: cliSites(sites)})

	case len(args) == 1:
		m, err := s.ModuleByName(args[0])
		if err != nil {
			return outputError("sites", nil, err)
		}
		if m == nil {
			return outputError("sites", nil, fmt.Errorf("module %q has not been woven", args[0]))
		}
		sites, err := s.SitesByModule(args[0])
		if err != nil {
			return outputError("sites", nil, err)
		}
		return outputResult(CLIResult{Command: "sites", Results: cliSites(sites)})
	}

	mods, err := s.Modules()
	if err != nil {
		return outputError("sites", nil, err)
	}
	results := make([]CLIModule, len(mods))
	for i, m := range mods {
		results[i] = toCLIStoredModule(m)
	}
	return outputResult(CLIResult{Command: "sites", Results: results})
}

func runTraces(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("traces", nil, err)
	}
	defer s.Close()

	traces, err := s.Traces(store.TraceFilter{
		Target: flagTarget,
		Member: flagMember,
		SiteID: flagSite,
		Limit:  flagLimit,
	})
	if err != nil {
		return outputError("traces", nil, err)
	}
	results := make([]CLITrace, len(traces))
	for i, t := range traces {
		results[i] = toCLITrace(t)
	}
	return outputResult(CLIResult{Command: "traces", Results: results})
}

func runDrop(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("drop", nil, err)
	}
	defer s.Close()

	dropped, err := dropModules(s, args)
	if err != nil {
		return outputError("drop", dropped, err)
	}
	return outputResult(CLIResult{Command: "drop", Results: dropped})
}

// dropModules deletes each named module and reports what was removed. It
// stops at the first module that was never woven.
func dropModules(s *store.Store, names []string) ([]CLIModule, error) {
	dropped := make([]CLIModule, 0, len(names))
	for _, name := range names {
		m, err := s.ModuleByName(name)
		if err != nil {
			return dropped, err
		}
		if m == nil {
			return dropped, fmt.Errorf("module %q has not been woven", name)
		}
		if err := s.DeleteModule(name); err != nil {
			return dropped, fmt.Errorf("dropping %s: %w", name, err)
		}
		dropped = append(dropped, toCLIStoredModule(m))
	}
	return dropped, nil
}

func cliSites(sites []*store.Site) []CLISite {
	out := make([]CLISite, len(sites))
	for i, s := range sites {
		out[i] = toCLISite(s)
	}
	return out
}
