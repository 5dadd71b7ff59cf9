package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jward/mixweave/internal/dispatch"
)

// --- Module operations ---

const moduleColumns = "id, name, source_hash, woven_hash, targets, site_count, woven_at"

func scanModule(row interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var targets string
	var wovenAt sql.NullTime
	if err := row.Scan(&m.ID, &m.Name, &m.SourceHash, &m.WovenHash, &targets, &m.SiteCount, &wovenAt); err != nil {
		return nil, err
	}
	m.Targets = unmarshalStrings(targets)
	if wovenAt.Valid {
		m.WovenAt = wovenAt.Time
	}
	return m, nil
}

// ModuleByName returns the stored module, or nil when it is missing.
func (s *Store) ModuleByName(name string) (*Module, error) {
	m, err := scanModule(s.db.QueryRow("SELECT "+moduleColumns+" FROM modules WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by name: %w", err)
	}
	return m, nil
}

// Modules lists every stored module by name.
func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleColumns + " FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var out []*Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Site operations ---

const siteColumns = "s.id, s.module_id, s.site_id, s.kind, s.target, s.member, s.discriminator, s.ordinal, s.line, s.callbacks"

func (s *Store) querySites(query string, args ...any) ([]*Site, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Site
	for rows.Next() {
		site := &Site{}
		var disc sql.NullString
		var line sql.NullInt64
		var callbacks string
		if err := rows.Scan(&site.ID, &site.ModuleID, &site.SiteID, &site.Kind, &site.Target, &site.Member,
			&disc, &site.Ordinal, &line, &callbacks); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Discriminator = disc.String
		site.Line = int(line.Int64)
		site.Callbacks = unmarshalStrings(callbacks)
		out = append(out, site)
	}
	return out, rows.Err()
}

// SitesByModule lists the sites of a module ordered by target, member,
// kind and ordinal.
func (s *Store) SitesByModule(name string) ([]*Site, error) {
	sites, err := s.querySites(
		"SELECT "+siteColumns+` FROM sites s JOIN modules m ON m.id = s.module_id
		 WHERE m.name = ? ORDER BY s.target, s.member, s.kind, s.ordinal`, name)
	if err != nil {
		return nil, fmt.Errorf("sites by module: %w", err)
	}
	return sites, nil
}

// SitesByTarget lists the sites woven into target, optionally narrowed to
// one member.
func (s *Store) SitesByTarget(target, member string) ([]*Site, error) {
	q := "SELECT " + siteColumns + " FROM sites s WHERE s.target = ?"
	args := []any{target}
	if member != "" {
		q += " AND s.member = ?"
		args = append(args, member)
	}
	sites, err := s.querySites(q+" ORDER BY s.member, s.kind, s.ordinal", args...)
	if err != nil {
		return nil, fmt.Errorf("sites by target: %w", err)
	}
	return sites, nil
}

// --- Trace operations ---

// Compile-time check: *Store satisfies dispatch.TraceSink.
var _ dispatch.TraceSink = (*Store)(nil)

// RecordTrace inserts one trace row.
func (s *Store) RecordTrace(ctx context.Context, t dispatch.Trace) error {
	tr := fromDispatch(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, target, member, kind, site_id, callback, cancelled, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.TraceID, tr.Target, tr.Member, tr.Kind, tr.SiteID, tr.Callback, tr.Cancelled, tr.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record trace: %w", err)
	}
	return nil
}

func fromDispatch(t dispatch.Trace) Trace {
	return Trace{
		TraceID:    t.ID,
		Target:     t.Target,
		Member:     t.Member,
		Kind:       string(t.Kind),
		SiteID:     t.Site,
		Callback:   t.Callback,
		Cancelled:  t.Cancelled,
		RecordedAt: t.At,
	}
}

// Traces lists recorded traces in insertion order.
func (s *Store) Traces(f TraceFilter) ([]*Trace, error) {
	var (
		where []string
		args  []any
	)
	if f.Target != "" {
		where = append(where, "target = ?")
		args = append(args, f.Target)
	}
	if f.Member != "" {
		where = append(where, "member = ?")
		args = append(args, f.Member)
	}
	if f.SiteID != "" {
		where = append(where, "site_id = ?")
		args = append(args, f.SiteID)
	}
	q := "SELECT id, trace_id, target, member, kind, site_id, callback, cancelled, recorded_at FROM traces"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("traces: %w", err)
	}
	defer rows.Close()
	var out []*Trace
	for rows.Next() {
		t := &Trace{}
		var at sql.NullTime
		if err := rows.Scan(&t.ID, &t.TraceID, &t.Target, &t.Member, &t.Kind, &t.SiteID, &t.Callback, &t.Cancelled, &at); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if at.Valid {
			t.RecordedAt = at.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
