package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/common"
)

// DefaultExclusionKeywords mark non-utility content.
var DefaultExclusionKeywords = []string{
	"graphic scale", "scale", "fence", "bollard", "pavement", "asphalt",
	"emergency spillway", "setback", "temporary easement", "chainlink",
}

var (
	elevationFields = []constants.Field{
		constants.RimElevFt,
		constants.OutletInvertElevFt,
		constants.SumpElevFt,
		constants.InletInvertElevFt,
	}
	structureIDFields = []constants.Field{constants.FromStructureID, constants.ToStructureID}
	freeTextFields    = []constants.Field{
		constants.FromStructureType,
		constants.Casting,
		constants.Location,
		constants.PipeType,
		constants.PipeMaterial,
	}
)

// Validator scores records against realistic value ranges and exclusion keywords.
type Validator struct {
	ExclusionKeywords []string
	MinElevation      float64
	MaxElevation      float64
	MinDiameter       float64
	MaxDiameter       float64
	StructureID       *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		ExclusionKeywords: DefaultExclusionKeywords,
		MinElevation:      0,
		MaxElevation:      2000,
		MinDiameter:       2,
		MaxDiameter:       120,
		StructureID:       regexp.MustCompile(`^[A-Z0-9-]+$`),
	}
}

// Score reports validity and completeness separately.
type Score struct {
	Valid        bool                     `json:"valid"`
	Completeness float64                  `json:"completeness"`
	Populated    int                      `json:"populated"`
	Weighted     float64                  `json:"weighted"`
	Issues       []common.ValidationError `json:"issues,omitempty"`
}

// IssueText joins issue messages for tabular output.
func (s Score) IssueText() string {
	parts := make([]string, len(s.Issues))
	for i, is := range s.Issues {
		parts[i] = fmt.Sprintf("%s: %s", is.Field, is.Message)
	}
	return strings.Join(parts, "; ")
}

// Validate scores one record.
func (v *Validator) Validate(r Record) Score {
	cv := common.NewValidator()

	for _, f := range freeTextFields {
		cv.Field(string(f), r.Get(f), v.excluded)
	}
	if r.SourceText != "" {
		cv.Field("source_text", r.SourceText, v.excluded)
	}

	for _, f := range elevationFields {
		v.numeric(cv, r, f, v.MinElevation, v.MaxElevation)
	}
	v.numeric(cv, r, constants.PipeDiameterIn, v.MinDiameter, v.MaxDiameter)

	for _, f := range structureIDFields {
		cv.Field(string(f), r.Get(f), common.Matches(v.StructureID, "uppercase letters, digits and hyphens"))
	}

	populated := r.Populated()
	return Score{
		Valid:        !cv.HasErrors(),
		Completeness: float64(populated) / float64(constants.SchemaSize),
		Populated:    populated,
		Weighted:     Weighted(r),
		Issues:       cv.Errors(),
	}
}

func (v *Validator) numeric(cv *common.Validator, r Record, f constants.Field, min, max float64) {
	n, ok, err := r.Number(f)
	if !ok {
		return
	}
	if err != nil {
		cv.Field(string(f), r.Get(f), func(name string, value interface{}) *common.ValidationError {
			return &common.ValidationError{Field: name, Value: value, Message: "is not numeric"}
		})
		return
	}
	cv.Field(string(f), n, common.Between(min, max))
}

func (v *Validator) excluded(field string, value interface{}) *common.ValidationError {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	for _, kw := range v.ExclusionKeywords {
		if strings.Contains(lower, kw) {
			return &common.ValidationError{Field: field, Value: value, Message: "contains exclusion keyword " + kw}
		}
	}
	return nil
}

// Weighted is a 0-100 score rewarding the fields most useful downstream:
// structure ids 2, elevations 3, pipe spec 3, structure type 1, length 1 (of 10 points).
func Weighted(r Record) float64 {
	score := 0.0
	if r.Get(constants.FromStructureID) != "" {
		score++
	}
	if r.Get(constants.ToStructureID) != "" {
		score++
	}
	if r.Get(constants.RimElevFt) != "" {
		score += 1.5
	}
	if r.Get(constants.OutletInvertElevFt) != "" || r.Get(constants.InletInvertElevFt) != "" {
		score += 1.5
	}
	if r.Get(constants.PipeDiameterIn) != "" {
		score += 1.5
	}
	if r.Get(constants.PipeMaterial) != "" {
		score += 1.5
	}
	if r.Get(constants.FromStructureType) != "" {
		score++
	}
	if r.Get(constants.RunLengthFt) != "" {
		score++
	}
	return score / 10 * 100
}
