package quality

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/plansets/constants"
)

// Record is one extracted row of utility data keyed by schema field.
type Record struct {
	DocumentID string                     `json:"doc_id"`
	Method     string                     `json:"method"` // "ai" | "pattern"
	Fields     map[constants.Field]string `json:"fields"`
	SourceText string                     `json:"source_text,omitempty"` // plan text line of a pattern record
}

// Get returns the trimmed value of f, or "" when unpopulated.
func (r Record) Get(f constants.Field) string {
	v := strings.TrimSpace(r.Fields[f])
	if isPlaceholder(v) {
		return ""
	}
	return v
}

// Set stores a value for f.
func (r *Record) Set(f constants.Field, v string) {
	if r.Fields == nil {
		r.Fields = make(map[constants.Field]string)
	}
	r.Fields[f] = strings.TrimSpace(v)
}

// Populated counts schema fields holding a value.
func (r Record) Populated() int {
	n := 0
	for _, f := range constants.SchemaFields() {
		if r.Get(f) != "" {
			n++
		}
	}
	return n
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Number parses the leading number of a field value such as "825.45 ft" or `12"`.
// ok is false when the field is unpopulated; err is set when it is populated but not numeric.
func (r Record) Number(f constants.Field) (value float64, ok bool, err error) {
	v := r.Get(f)
	if v == "" {
		return 0, false, nil
	}
	return ParseNumber(v)
}

// ParseNumber extracts the first number in s.
func ParseNumber(s string) (float64, bool, error) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, true, strconv.ErrSyntax
	}
	n, err := strconv.ParseFloat(m, 64)
	return n, true, err
}

func isPlaceholder(v string) bool {
	switch strings.ToLower(v) {
	case "", "-", "--", "n/a", "na", "none", "null":
		return true
	}
	return false
}
