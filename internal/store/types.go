package store

import "time"

// Module is one woven module.
type Module struct {
	ID         int64
	Name       string
	SourceHash string
	WovenHash  string
	Targets    []string
	SiteCount  int
	WovenAt    time.Time
}

// Site is one woven dispatch site and the callbacks registered on it, in
// dispatch order.
type Site struct {
	ID            int64
	ModuleID      int64
	SiteID        string
	Kind          string
	Target        string
	Member        string
	Discriminator string
	Ordinal       int
	Line          int
	Callbacks     []string
}

// Trace is one recorded callback invocation.
type Trace struct {
	ID         int64
	TraceID    string
	Target     string
	Member     string
	Kind       string
	SiteID     string
	Callback   string
	Cancelled  bool
	RecordedAt time.Time
}

// TraceFilter narrows Traces. Zero fields match everything; Limit 0 means
// no limit.
type TraceFilter struct {
	Target string
	Member string
	SiteID string
	Limit  int
}
