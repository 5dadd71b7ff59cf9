package mixweave

import (
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/pyfront"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/selector"
	"github.com/jward/mixweave/internal/weaver"
)

// Sentinel errors. Match them with errors.Is; the typed errors below
// unwrap to them.
var (
	ErrRegistrationAfterFreeze = registry.ErrRegistrationAfterFreeze
	ErrInjectionCount          = weaver.ErrInjectionCount
	ErrSelectorAmbiguity       = selector.ErrAmbiguous
	ErrControlMisuse           = dispatch.ErrControlMisuse
	ErrDuplicateKeyword        = dispatch.ErrDuplicateKeyword
	ErrSyntax                  = pyfront.ErrSyntax
)

type CountError = weaver.CountError
type AmbiguityError = selector.AmbiguityError
type ControlMisuseError = dispatch.ControlMisuseError
type DuplicateKeywordError = dispatch.DuplicateKeywordError
type SyntaxError = pyfront.SyntaxError
