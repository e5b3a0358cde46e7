package annotate

import (
	"fmt"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// Rejection explains why a raw annotation was not normalized.
type Rejection struct {
	DocumentID string `json:"doc_id"`
	Page       int    `json:"page_index"`
	Label      string `json:"label"`
	Reason     string `json:"reason"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("annotation %s page %d label %q: %s", r.DocumentID, r.Page, r.Label, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return common.ErrNormalization
}

func reject(raw Raw, format string, args ...any) *Rejection {
	return &Rejection{
		DocumentID: raw.DocumentID,
		Page:       raw.Page,
		Label:      raw.Label,
		Reason:     fmt.Sprintf(format, args...),
	}
}
