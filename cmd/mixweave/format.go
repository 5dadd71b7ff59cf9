package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// formatModulesText formats CLIModule results as aligned columns, followed by
// the sites and woven source of each module when present.
func formatModulesText(w io.Writer, mods []CLIModule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSITES\tWOVEN\tWOVEN AT")
	for _, m := range mods {
		at := ""
		if !m.WovenAt.IsZero() {
			at = m.WovenAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.Name, m.SiteCount, strings.Join(m.Woven, ","), at)
	}
	tw.Flush()

	for _, m := range mods {
		if len(m.Sites) > 0 {
			fmt.Fprintf(w, "\n%s sites:\n", m.Name)
			formatSitesText(w, m.Sites)
		}
		if m.Source != "" {
			fmt.Fprintf(w, "\n# --- %s (woven) ---\n%s", m.Name, m.Source)
		}
	}
}

// formatSitesText formats CLISite results as aligned columns.
func formatSitesText(w io.Writer, sites []CLISite) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTARGET\tMEMBER\tAT\tORD\tLINE\tCALLBACKS")
	for _, s := range sites {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Kind, s.Target, s.Member, s.Discriminator, s.Ordinal, s.Line, strings.Join(s.Callbacks, ","))
	}
	tw.Flush()
}

// formatTracesText formats CLITrace results as aligned columns.
func formatTracesText(w io.Writer, traces []CLITrace) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRACE\tKIND\tTARGET\tMEMBER\tCALLBACK\tCANCELLED")
	for _, t := range traces {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			t.RecordedAt.Local().Format(time.StampMilli), t.TraceID, t.Kind, t.Target, t.Member, t.Callback, t.Cancelled)
	}
	tw.Flush()
}

// formatRunText writes captured program output, then the call result.
func formatRunText(w io.Writer, r CLIRun) {
	fmt.Fprint(w, r.Stdout)
	if r.Call != "" {
		fmt.Fprintf(w, "%s -> %s\n", r.Call, r.Repr)
	}
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if currentFormat() == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIModule:
		formatModulesText(w, v)
	case []CLISite:
		formatSitesText(w, v)
	case []CLITrace:
		formatTracesText(w, v)
	case CLIRun:
		formatRunText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope, alongside any partial results. In text mode it goes to
// stderr.
func outputError(command string, results any, err error) error {
	errorHandled = true
	if currentFormat() == "text" {
		if results != nil {
			_ = outputResultText(os.Stdout, CLIResult{Command: command, Results: results})
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Results: results,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func currentFormat() string {
	if cfg == nil {
		return "json"
	}
	return cfg.Format
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
