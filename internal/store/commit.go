package store

import (
	"database/sql"
	"fmt"
)

// SaveModule replaces the stored state of m.Name with m and sites inside a
// single transaction: the module row is upserted, its previous sites are
// deleted and the new ones inserted. m.ID, m.SiteCount and the ModuleID and
// ID of every site are set on success.
func (s *Store) SaveModule(m *Module, sites []*Site) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save module: begin: %w", err)
	}
	defer tx.Rollback()

	m.SiteCount = len(sites)
	id, err := upsertModuleTx(tx, m)
	if err != nil {
		return fmt.Errorf("save module %s: %w", m.Name, err)
	}
	if err := deleteSitesTx(tx, id); err != nil {
		return fmt.Errorf("save module %s: %w", m.Name, err)
	}
	for _, site := range sites {
		site.ModuleID = id
		if _, err := insertSiteTx(tx, site); err != nil {
			return fmt.Errorf("save module %s: site %s: %w", m.Name, site.SiteID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save module %s: commit: %w", m.Name, err)
	}
	m.ID = id
	return nil
}

func upsertModuleTx(tx *sql.Tx, m *Module) (int64, error) {
	_, err := tx.Exec(
		`INSERT INTO modules (name, source_hash, woven_hash, targets, site_count, woven_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			source_hash = excluded.source_hash,
			woven_hash = excluded.woven_hash,
			targets = excluded.targets,
			site_count = excluded.site_count,
			woven_at = excluded.woven_at`,
		m.Name, m.SourceHash, m.WovenHash, marshalStrings(m.Targets), m.SiteCount, m.WovenAt,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert module: %w", err)
	}
	var id int64
	if err := tx.QueryRow("SELECT id FROM modules WHERE name = ?", m.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("module id: %w", err)
	}
	return id, nil
}

func insertSiteTx(tx *sql.Tx, site *Site) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO sites (module_id, site_id, kind, target, member, discriminator, ordinal, line, callbacks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ModuleID, site.SiteID, site.Kind, site.Target, site.Member, site.Discriminator,
		site.Ordinal, site.Line, marshalStrings(site.Callbacks),
	)
	if err != nil {
		return 0, fmt.Errorf("insert site: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	site.ID = id
	return id, nil
}

func insertTraceTx(tx *sql.Tx, t *Trace) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO traces (trace_id, target, member, kind, site_id, callback, cancelled, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.Target, t.Member, t.Kind, t.SiteID, t.Callback, t.Cancelled, t.RecordedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert trace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return id, nil
}

// CommitTraces inserts traces within a single transaction.
func (s *Store) CommitTraces(traces []Trace) error {
	if len(traces) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit traces: begin: %w", err)
	}
	defer tx.Rollback()
	for i := range traces {
		if _, err := insertTraceTx(tx, &traces[i]); err != nil {
			return fmt.Errorf("commit traces: %w", err)
		}
	}
	return tx.Commit()
}
