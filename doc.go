// Package mixweave injects callbacks into Python-like programs at
// declaratively selected points, without editing the program source.
//
// # Pipeline
//
// mixweave operates in three phases:
//
//  1. Register: injectors are declared against a target (a module or a
//     module.Class), a member (a function name) and an injection point
//     ([At]). Declarations come from Go code or from YAML files whose
//     actions are Risor scripts.
//
//  2. Weave: the first time a module is loaded, its source is parsed with
//     tree-sitter and every selected point is rewritten into a call to the
//     dispatch layer. The registry freezes on first weave.
//
//  3. Run: the woven module executes on a tree-walking interpreter. Each
//     hook runs its site's callbacks in deterministic order and applies
//     their control signals (cancel, set a value, rewrite call arguments).
//
// # Usage
//
//	e, err := mixweave.New(mixweave.WithStore("mixweave.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	_, err = e.Register(mixweave.Injector{
//		Target:   "shop",
//		Member:   "price",
//		At:       mixweave.At{Kind: mixweave.Parameter, Name: "qty"},
//		Callback: mixweave.ParameterCallback("clamp", clamp),
//	})
//
//	m, err := e.Load(ctx, "shop", src)
//	total, err := m.Call(ctx, "price", -5)
//
// # Injection kinds
//
//   - HEAD: before the first statement of a member.
//   - TAIL: at every return, explicit or implicit.
//   - PARAMETER: on entry, once per selected parameter.
//   - CONST: every use of a literal.
//   - INVOKE: around a call, matched by dotted name and [CallSelector].
//   - ATTRIBUTE: every store to an attribute path.
//   - EXCEPTION: in matching except clauses, or at the member boundary.
//   - YIELD: every value a generator yields.
//
// # Class members
//
// [Engine.AddMember] adds a method or an attribute to a module-level class
// without touching its source. Members are bound when the class statement
// runs, so the rest of the module body already sees them.
//
// # Persistence
//
// With [WithStore], woven modules, their sites and (with [WithTrace])
// every callback invocation are recorded in SQLite. [WithDumpDir] writes
// the woven source of every module for inspection.
package mixweave
