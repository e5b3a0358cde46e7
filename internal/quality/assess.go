package quality

import (
	"math"

	"github.com/joseph-ayodele/plansets/constants"
)

// HighQualityThreshold is the weighted score at or above which a record is reported as high quality.
const HighQualityThreshold = 70.0

// Scored pairs a record with its score.
type Scored struct {
	Record
	Score Score
}

// ScoreAll validates every record.
func (v *Validator) ScoreAll(records []Record) []Scored {
	out := make([]Scored, len(records))
	for i, r := range records {
		out[i] = Scored{Record: r, Score: v.Validate(r)}
	}
	return out
}

// Assessment aggregates scores across a batch.
type Assessment struct {
	TotalRecords           int     `json:"total_records"`
	ValidRecords           int     `json:"valid_records"`
	HighQualityRecords     int     `json:"high_quality_records"`
	WithStructureIDs       int     `json:"records_with_structure_ids"`
	WithElevations         int     `json:"records_with_elevations"`
	WithPipeSpecs          int     `json:"records_with_pipe_specs"`
	WithMaterials          int     `json:"records_with_materials"`
	CompleteRecords        int     `json:"complete_records"`
	MeanCompleteness       float64 `json:"mean_completeness"`
	MeanWeighted           float64 `json:"mean_weighted"`
	ValidityPercentage     float64 `json:"validity_percentage"`
	CompletenessPercentage float64 `json:"completeness_percentage"`
}

// Assess summarizes scored records. A record is complete when at least three of
// the four groups (ids, elevations, pipe spec, material) are present.
func Assess(scored []Scored) Assessment {
	var a Assessment
	var sumCompleteness, sumWeighted float64
	for _, s := range scored {
		a.TotalRecords++
		if s.Score.Valid {
			a.ValidRecords++
		}
		if s.Score.Weighted >= HighQualityThreshold {
			a.HighQualityRecords++
		}
		sumCompleteness += s.Score.Completeness
		sumWeighted += s.Score.Weighted

		hasIDs := s.Get(constants.FromStructureID) != "" || s.Get(constants.ToStructureID) != ""
		hasElev := s.Get(constants.RimElevFt) != "" || s.Get(constants.OutletInvertElevFt) != "" || s.Get(constants.InletInvertElevFt) != ""
		hasPipe := s.Get(constants.PipeDiameterIn) != "" || s.Get(constants.RunLengthFt) != ""
		hasMat := s.Get(constants.PipeMaterial) != ""

		groups := 0
		for _, ok := range []bool{hasIDs, hasElev, hasPipe, hasMat} {
			if ok {
				groups++
			}
		}
		if hasIDs {
			a.WithStructureIDs++
		}
		if hasElev {
			a.WithElevations++
		}
		if hasPipe {
			a.WithPipeSpecs++
		}
		if hasMat {
			a.WithMaterials++
		}
		if groups >= 3 {
			a.CompleteRecords++
		}
	}
	if a.TotalRecords > 0 {
		n := float64(a.TotalRecords)
		a.MeanCompleteness = round2(sumCompleteness / n)
		a.MeanWeighted = round2(sumWeighted / n)
		a.ValidityPercentage = round2(float64(a.ValidRecords) / n * 100)
		a.CompletenessPercentage = round2(float64(a.CompleteRecords) / n * 100)
	}
	return a
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
