// Package demo embeds a small game module and the declaration file whose
// injectors patch it.
package demo

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jward/mixweave"
)

//go:embed game.py mixins.yaml scripts
var FS embed.FS

// Module is the name the game is loaded under.
const Module = "game"

// Source returns the unpatched game program.
func Source() []byte {
	data, _ := FS.ReadFile("game.py")
	return data
}

// Declarations returns the injector declarations.
func Declarations() []byte {
	data, _ := FS.ReadFile("mixins.yaml")
	return data
}

// Scripts returns the filesystem action_file paths resolve against.
func Scripts() fs.FS {
	sub, err := fs.Sub(FS, "scripts")
	if err != nil {
		panic(err)
	}
	return sub
}

// Run registers the demo injectors, weaves the game and runs it. opts are
// applied after the demo's own options.
func Run(ctx context.Context, opts ...mixweave.Option) (*mixweave.Module, error) {
	e, err := mixweave.New(append([]mixweave.Option{mixweave.WithScriptsFS(Scripts())}, opts...)...)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	if err := e.LoadDeclarations(Declarations()); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	m, err := e.Load(ctx, Module, Source())
	if err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	if err := m.Exec(ctx); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	return m, nil
}
