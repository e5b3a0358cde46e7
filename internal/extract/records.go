package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

// RecordsFromStandardized flattens standardization payloads into records. A payload
// may be an object, an array, or wrap either under "data"; every object holding at
// least two scalar values is treated as one item.
func RecordsFromStandardized(documentID string, payloads []json.RawMessage) ([]quality.Record, error) {
	var out []quality.Record
	for i, p := range payloads {
		var v any
		if err := json.Unmarshal(p, &v); err != nil {
			return nil, fmt.Errorf("decode standardization %d: %w", i, err)
		}
		for _, item := range collectItems(v) {
			if r, ok := recordFromItem(documentID, item); ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func collectItems(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, collectItems(e)...)
		}
		return out
	case map[string]any:
		var out []map[string]any
		scalars := map[string]any{}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch t[k].(type) {
			case []any, map[string]any:
				out = append(out, collectItems(t[k])...)
			case nil:
			default:
				scalars[k] = t[k]
			}
		}
		if len(scalars) >= minMeaningfulFields {
			out = append([]map[string]any{scalars}, out...)
		}
		return out
	}
	return nil
}

func recordFromItem(documentID string, item map[string]any) (quality.Record, bool) {
	r := quality.Record{DocumentID: documentID, Method: MethodAI}
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := scalarString(item[k])
		if val == "" {
			continue
		}
		f, ok := fieldForKey(k)
		if !ok {
			continue
		}
		setIfEmpty(&r, f, val)
	}
	return r, r.Populated() >= minMeaningfulFields
}

// fieldForKey resolves a service key through the alias table, then by keyword heuristics.
func fieldForKey(key string) (constants.Field, bool) {
	snake := toSnake(key)
	if f, ok := constants.Canonicalize(snake); ok {
		return f, true
	}
	has := func(parts ...string) bool {
		for _, p := range parts {
			if strings.Contains(snake, p) {
				return true
			}
		}
		return false
	}
	tokens := map[string]bool{}
	for _, t := range strings.Split(snake, "_") {
		tokens[t] = true
	}
	word := func(words ...string) bool {
		for _, w := range words {
			if tokens[w] {
				return true
			}
		}
		return false
	}
	switch {
	case has("structure", "manhole", "node") && (word("id", "name", "number", "no") || has("_id", "number")):
		if word("to", "end", "downstream") {
			return constants.ToStructureID, true
		}
		return constants.FromStructureID, true
	case has("rim"):
		return constants.RimElevFt, true
	case has("sump"):
		return constants.SumpElevFt, true
	case has("invert"):
		if has("inlet", "upstream") || word("in") {
			return constants.InletInvertElevFt, true
		}
		return constants.OutletInvertElevFt, true
	case has("diameter", "size"):
		return constants.PipeDiameterIn, true
	case has("material"):
		return constants.PipeMaterial, true
	case has("pavement", "pvmt"):
		return constants.LengthInPvmtFt, true
	case has("road"):
		return constants.LengthInRoadFt, true
	case has("length"):
		return constants.RunLengthFt, true
	case has("casting", "frame", "cover", "grate"):
		return constants.Casting, true
	case has("location", "station", "northing", "easting"):
		return constants.Location, true
	case has("type"):
		if has("pipe") {
			return constants.PipeType, true
		}
		return constants.FromStructureType, true
	}
	return "", false
}

// toSnake turns "rimElevation" or "Rim Elevation" into "rim_elevation".
func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// Combine merges service records and pattern records, service records first, dropping
// later records with the same (from id, to id, rim elevation). Records carrying none
// of the three are kept as-is.
func Combine(ai, pattern []quality.Record) []quality.Record {
	seen := map[string]bool{}
	out := make([]quality.Record, 0, len(ai)+len(pattern))
	for _, group := range [][]quality.Record{ai, pattern} {
		for _, r := range group {
			from, to, rim := r.Get(constants.FromStructureID), r.Get(constants.ToStructureID), r.Get(constants.RimElevFt)
			if from == "" && to == "" && rim == "" {
				out = append(out, r)
				continue
			}
			key := strings.ToUpper(from) + "|" + strings.ToUpper(to) + "|" + normalizeNumber(rim)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func normalizeNumber(s string) string {
	if n, ok, err := quality.ParseNumber(s); ok && err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return s
}
