package extract

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

const (
	MethodAI      = "ai"
	MethodPattern = "pattern"
)

var (
	structureIDRe   = regexp.MustCompile(`\b([A-Z]{1,3}-?\d{1,4}[A-Z]?)\b`)
	elevationRe     = regexp.MustCompile(`(\d+\.?\d*)\s*["']?\s*(?:(?i:ft|feet)\b|')`)
	diameterRe      = regexp.MustCompile(`(\d+\.?\d*)\s*'?\s*(?:(?i:in|inch)\b|")`)
	lengthRe        = regexp.MustCompile(`(\d+\.?\d*)\s*(?i:lf|l\.f\.)`)
	materialRe      = regexp.MustCompile(`(?i)\b(PVC|HDPE|STEEL|CONCRETE|RCP|DIP|CI|CMP|DUCTILE IRON)\b`)
	structureTypeRe = regexp.MustCompile(`(?i)\b(MANHOLE|CATCH\s*BASIN|INLET|OUTLET|JUNCTION\s*BOX|MH|CB)\b`)
	rimRe           = regexp.MustCompile(`(?i)\bRIM\s*(?:ELEV\.?)?\s*[:=]?\s*(\d+\.?\d*)`)
	invertRe        = regexp.MustCompile(`(?i)\bINV(?:ERT)?\.?\s*(?:(IN|OUT)\b\.?)?\s*(?:ELEV\.?)?\s*[:=]?\s*(\d+\.?\d*)`)
)

// minMeaningfulFields is the number of populated fields a row needs to count as a record.
const minMeaningfulFields = 2

// ExtractPatterns scans text line by line for rows that look like structure or pipe
// table entries and turns each into a record.
func ExtractPatterns(documentID, text string) []quality.Record {
	var out []quality.Record
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !looksLikeDataRow(line) {
			continue
		}
		if r, ok := recordFromLine(documentID, line); ok {
			out = append(out, r)
		}
	}
	return out
}

func looksLikeDataRow(line string) bool {
	if len(line) < 10 {
		return false
	}
	indicators := 0
	if structureIDRe.MatchString(line) {
		indicators++
	}
	if elevationRe.MatchString(line) || rimRe.MatchString(line) || invertRe.MatchString(line) {
		indicators++
	}
	if diameterRe.MatchString(line) {
		indicators++
	}
	return indicators >= 2
}

func recordFromLine(documentID, line string) (quality.Record, bool) {
	r := quality.Record{DocumentID: documentID, Method: MethodPattern, SourceText: line}

	ids := structureIDRe.FindAllString(line, -1)
	if len(ids) > 0 {
		r.Set(constants.FromStructureID, ids[0])
	}
	if len(ids) > 1 {
		r.Set(constants.ToStructureID, ids[1])
	}

	if m := rimRe.FindStringSubmatch(line); m != nil {
		r.Set(constants.RimElevFt, m[1])
	}
	for _, m := range invertRe.FindAllStringSubmatch(line, -1) {
		if strings.EqualFold(m[1], "IN") {
			setIfEmpty(&r, constants.InletInvertElevFt, m[2])
		} else {
			setIfEmpty(&r, constants.OutletInvertElevFt, m[2])
		}
	}
	// Without labels, the first elevation is usually the rim and the second the invert.
	if r.Get(constants.RimElevFt) == "" && r.Get(constants.OutletInvertElevFt) == "" {
		elev := elevationRe.FindAllStringSubmatch(line, 2)
		if len(elev) > 0 {
			r.Set(constants.RimElevFt, elev[0][1])
		}
		if len(elev) > 1 {
			r.Set(constants.OutletInvertElevFt, elev[1][1])
		}
	}

	if m := diameterRe.FindStringSubmatch(line); m != nil {
		r.Set(constants.PipeDiameterIn, m[1])
	}
	if m := lengthRe.FindStringSubmatch(line); m != nil {
		r.Set(constants.RunLengthFt, m[1])
	}
	if m := materialRe.FindStringSubmatch(line); m != nil {
		r.Set(constants.PipeMaterial, strings.ToUpper(m[1]))
	}
	if m := structureTypeRe.FindStringSubmatch(line); m != nil {
		r.Set(constants.FromStructureType, canonicalStructureType(m[1]))
	}

	return r, r.Populated() >= minMeaningfulFields
}

func canonicalStructureType(s string) string {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	switch s {
	case "MH":
		return "MANHOLE"
	case "CB":
		return "CATCH BASIN"
	}
	return s
}

func setIfEmpty(r *quality.Record, f constants.Field, v string) {
	if r.Get(f) == "" {
		r.Set(f, v)
	}
}
