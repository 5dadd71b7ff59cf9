package main

import (
	"time"

	"github.com/jward/mixweave"
	"github.com/jward/mixweave/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIModule is a JSON-friendly woven module.
type CLIModule struct {
	Name       string    `json:"name"`
	Woven      []string  `json:"woven"`
	SiteCount  int       `json:"site_count"`
	SourceHash string    `json:"source_hash,omitempty"`
	WovenHash  string    `json:"woven_hash,omitempty"`
	WovenAt    time.Time `json:"woven_at,omitzero"`
	Sites      []CLISite `json:"sites,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// CLISite is a JSON-friendly dispatch site.
type CLISite struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Target        string   `json:"target"`
	Member        string   `json:"member"`
	Discriminator string   `json:"discriminator,omitempty"`
	Ordinal       int      `json:"ordinal"`
	Line          int      `json:"line"`
	Callbacks     []string `json:"callbacks"`
}

// CLITrace is a JSON-friendly recorded callback invocation.
type CLITrace struct {
	TraceID    string    `json:"trace_id"`
	Target     string    `json:"target"`
	Member     string    `json:"member"`
	Kind       string    `json:"kind"`
	SiteID     string    `json:"site_id"`
	Callback   string    `json:"callback"`
	Cancelled  bool      `json:"cancelled"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CLIRun is the result of running a module.
type CLIRun struct {
	Module string `json:"module"`
	Call   string `json:"call,omitempty"`
	Value  any    `json:"value,omitempty"`
	Repr   string `json:"repr,omitempty"`
	Stdout string `json:"stdout,omitempty"`
}

func toCLIModule(m *mixweave.Module) CLIModule {
	out := CLIModule{Name: m.Name, Woven: m.Woven, SiteCount: len(m.Sites)}
	if out.Woven == nil {
		out.Woven = []string{}
	}
	for _, s := range m.Sites {
		callbacks := make([]string, len(s.Entries))
		for i, e := range s.Entries {
			callbacks[i] = e.Callback.Name
		}
		out.Sites = append(out.Sites, CLISite{
			ID:            s.ID,
			Kind:          string(s.Kind),
			Target:        s.Target,
			Member:        s.Member,
			Discriminator: s.Discriminator,
			Ordinal:       s.Ordinal,
			Line:          s.Line,
			Callbacks:     callbacks,
		})
	}
	return out
}

func toCLIStoredModule(m *store.Module) CLIModule {
	return CLIModule{
		Name:       m.Name,
		Woven:      m.Targets,
		SiteCount:  m.SiteCount,
		SourceHash: m.SourceHash,
		WovenHash:  m.WovenHash,
		WovenAt:    m.WovenAt,
	}
}

func toCLISite(s *store.Site) CLISite {
	return CLISite{
		ID:            s.SiteID,
		Kind:          s.Kind,
		Target:        s.Target,
		Member:        s.Member,
		Discriminator: s.Discriminator,
		Ordinal:       s.Ordinal,
		Line:          s.Line,
		Callbacks:     s.Callbacks,
	}
}

func toCLITrace(t *store.Trace) CLITrace {
	return CLITrace{
		TraceID:    t.TraceID,
		Target:     t.Target,
		Member:     t.Member,
		Kind:       t.Kind,
		SiteID:     t.SiteID,
		Callback:   t.Callback,
		Cancelled:  t.Cancelled,
		RecordedAt: t.RecordedAt,
	}
}
