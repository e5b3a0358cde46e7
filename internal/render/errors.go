package render

import (
	"fmt"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// Error is a per-page render failure. Callers skip the page and continue.
type Error struct {
	DocumentID string
	Page       int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s page %d: %s: %v", e.DocumentID, e.Page, e.Reason, e.Err)
	}
	return fmt.Sprintf("render %s page %d: %s", e.DocumentID, e.Page, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrRender}
	}
	return []error{common.ErrRender, e.Err}
}
