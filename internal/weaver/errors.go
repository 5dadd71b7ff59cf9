package weaver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/registry"
)

// ErrInjectionCount is matched by *CountError.
var ErrInjectionCount = errors.New("weaver: injection count mismatch")

// CountError reports an injector whose surviving candidate count differs from
// its require or expect count under a failing policy.
type CountError struct {
	Target   string
	Member   string
	At       string
	Callback string
	Field    string // "require" or "expect"
	Want     int
	Got      int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("weaver: %s.%s %s (%s): %s=%d but matched %d",
		e.Target, e.Member, e.At, e.Callback, e.Field, e.Want, e.Got)
}

func (e *CountError) Is(target error) bool { return target == ErrInjectionCount }

// checkCount applies the mismatch policy of spec to got surviving candidates.
// require mismatches fail under STRICT and ERROR and warn under WARN. expect
// mismatches fail only under STRICT and warn under ERROR and WARN.
func checkCount(log *zap.Logger, spec *registry.Spec, got int) error {
	check := func(field string, want *int, fails bool, warns bool) error {
		if want == nil || *want == got {
			return nil
		}
		cerr := &CountError{
			Target:   spec.Target,
			Member:   spec.Member,
			At:       spec.At.String(),
			Callback: spec.Callback.Name,
			Field:    field,
			Want:     *want,
			Got:      got,
		}
		if fails {
			return cerr
		}
		if warns {
			log.Warn("injection count mismatch",
				zap.String("target", spec.Target),
				zap.String("member", spec.Member),
				zap.String("at", cerr.At),
				zap.String("callback", cerr.Callback),
				zap.String("field", field),
				zap.Int("want", *want),
				zap.Int("got", got))
		}
		return nil
	}

	p := spec.Policy
	if err := check("require", spec.Require, p == model.PolicyStrict || p == model.PolicyError, p == model.PolicyWarn); err != nil {
		return err
	}
	return check("expect", spec.Expect, p == model.PolicyStrict, p == model.PolicyError || p == model.PolicyWarn)
}
