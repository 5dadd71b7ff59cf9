package dispatch

import (
	"errors"
	"fmt"

	"github.com/jward/mixweave/internal/model"
)

var (
	// ErrControlMisuse is matched by *ControlMisuseError.
	ErrControlMisuse = errors.New("dispatch: control misuse")
	// ErrDuplicateKeyword is matched by *DuplicateKeywordError.
	ErrDuplicateKeyword = errors.New("dispatch: duplicate keyword argument")
)

// ControlMisuseError reports a control method used outside the kinds that
// support it, or conflicting signals raised by one callback.
type ControlMisuseError struct {
	Kind   model.Kind
	Method string
	Reason string
}

func (e *ControlMisuseError) Error() string {
	return fmt.Sprintf("dispatch: %s on %s: %s", e.Method, e.Kind, e.Reason)
}

func (e *ControlMisuseError) Is(target error) bool { return target == ErrControlMisuse }

// DuplicateKeywordError reports a keyword supplied both explicitly and
// through a spread.
type DuplicateKeywordError struct {
	Key string
}

func (e *DuplicateKeywordError) Error() string {
	return fmt.Sprintf("dispatch: multiple values for keyword argument %q", e.Key)
}

func (e *DuplicateKeywordError) Is(target error) bool { return target == ErrDuplicateKeyword }

// MergeKwargs merges keyword maps in order, failing on the first key seen
// twice. Nil maps are skipped.
func MergeKwargs(maps ...map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			if _, dup := out[k]; dup {
				return nil, &DuplicateKeywordError{Key: k}
			}
			out[k] = v
		}
	}
	return out, nil
}
