package mixweave

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Source is one module to load.
type Source struct {
	Name string
	Src  []byte
}

// LoadAll loads independent modules concurrently, bounded by
// WithParallelism. The registry is frozen before any worker starts.
//
// Every module that loads is returned, keyed by name, even when others
// fail; the error aggregates every failure.
func (e *Engine) LoadAll(ctx context.Context, sources []Source) (map[string]*Module, error) {
	e.reg.Freeze()

	type result struct {
		name string
		mod  *Module
		err  error
	}
	results := make([]result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if e.parallelism > 0 {
		g.SetLimit(e.parallelism)
	}
	for i, s := range sources {
		g.Go(func() error {
			mod, err := e.Load(gctx, s.Name, s.Src)
			results[i] = result{name: s.Name, mod: mod, err: err}
			// Failures are collected per module.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Module, len(sources))
	var errs error
	for _, r := range results {
		if r.mod != nil {
			out[r.name] = r.mod
		}
		if r.err != nil {
			errs = multierr.Append(errs, r.err)
		}
	}
	return out, errs
}

// LoadFiles reads and loads every path with LoadAll. Module names come
// from ModuleName.
func (e *Engine) LoadFiles(ctx context.Context, paths []string) (map[string]*Module, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	sources := make([]Source, 0, len(sorted))
	var errs error
	for _, p := range sorted {
		src, err := os.ReadFile(p)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mixweave: read %s: %w", p, err))
			continue
		}
		sources = append(sources, Source{Name: ModuleName(p), Src: src})
	}
	mods, err := e.LoadAll(ctx, sources)
	return mods, multierr.Append(errs, err)
}
