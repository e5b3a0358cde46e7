package constants

import (
	"strings"
)

// Field is one label of the fixed civil-engineering extraction schema.
type Field string

const (
	FromStructureID    Field = "from_structure_id"
	FromStructureType  Field = "from_structure_type"
	Casting            Field = "casting"
	Location           Field = "location"
	RimElevFt          Field = "rim_elev_ft"
	OutletInvertElevFt Field = "outlet_invert_elev_ft"
	SumpElevFt         Field = "sump_elev_ft"
	ToStructureID      Field = "to_structure_id"
	InletInvertElevFt  Field = "inlet_invert_elev_ft"
	PipeDiameterIn     Field = "pipe_diameter_in"
	PipeType           Field = "pipe_type"
	RunLengthFt        Field = "run_length_ft"
	LengthInPvmtFt     Field = "length_in_pvmt_ft"
	LengthInRoadFt     Field = "length_in_road_ft"
	PipeMaterial       Field = "pipe_material"
)

// schemaFields is the canonical order. Label indices in exported datasets are positions in this slice.
var schemaFields = []Field{
	FromStructureID,
	FromStructureType,
	Casting,
	Location,
	RimElevFt,
	OutletInvertElevFt,
	SumpElevFt,
	ToStructureID,
	InletInvertElevFt,
	PipeDiameterIn,
	PipeType,
	RunLengthFt,
	LengthInPvmtFt,
	LengthInRoadFt,
	PipeMaterial,
}

// SchemaSize is the number of fields in the schema.
const SchemaSize = 15

// fieldAliases maps alternative spellings seen in annotation tools and service output to schema fields.
var fieldAliases = map[string]Field{
	"from_structure": FromStructureID,
	"upstream_id":    FromStructureID,
	"manhole_from":   FromStructureID,

	"structure_type": FromStructureType,
	"upstream_type":  FromStructureType,
	"type":           FromStructureType,

	"frame_cover":     Casting,
	"frame":           Casting,
	"cover":           Casting,
	"frame_and_cover": Casting,

	"address":     Location,
	"coordinates": Location,
	"position":    Location,

	"rim_elevation":    RimElevFt,
	"rim_elev":         RimElevFt,
	"ground_elevation": RimElevFt,

	"outlet_invert":    OutletInvertElevFt,
	"invert_out":       OutletInvertElevFt,
	"outlet_elevation": OutletInvertElevFt,

	"sump_elevation":   SumpElevFt,
	"sump_depth":       SumpElevFt,
	"bottom_elevation": SumpElevFt,

	"to_structure":  ToStructureID,
	"downstream_id": ToStructureID,
	"manhole_to":    ToStructureID,

	"inlet_invert":    InletInvertElevFt,
	"invert_in":       InletInvertElevFt,
	"inlet_elevation": InletInvertElevFt,

	"diameter":    PipeDiameterIn,
	"pipe_size":   PipeDiameterIn,
	"size_inches": PipeDiameterIn,

	"pipe_class":     PipeType,
	"classification": PipeType,
	"material_type":  PipeType,

	"length":      RunLengthFt,
	"pipe_length": RunLengthFt,
	"distance":    RunLengthFt,

	"pavement_length": LengthInPvmtFt,
	"in_pavement":     LengthInPvmtFt,
	"pvmt_length":     LengthInPvmtFt,

	"road_length":    LengthInRoadFt,
	"in_roadway":     LengthInRoadFt,
	"roadway_length": LengthInRoadFt,

	"material":      PipeMaterial,
	"pipe_spec":     PipeMaterial,
	"specification": PipeMaterial,
}

var fieldIndex = func() map[Field]int {
	m := make(map[Field]int, len(schemaFields))
	for i, f := range schemaFields {
		m[f] = i
	}
	return m
}()

// SchemaFields returns a copy of the schema in canonical order.
func SchemaFields() []Field {
	out := make([]Field, len(schemaFields))
	copy(out, schemaFields)
	return out
}

// AsStringSlice returns the schema labels in canonical order.
func AsStringSlice() []string {
	result := make([]string, len(schemaFields))
	for i, f := range schemaFields {
		result[i] = string(f)
	}
	return result
}

// Index returns the label index of f in the schema.
func (f Field) Index() (int, bool) {
	i, ok := fieldIndex[f]
	return i, ok
}

// FieldAt returns the field for a label index.
func FieldAt(i int) (Field, bool) {
	if i < 0 || i >= len(schemaFields) {
		return "", false
	}
	return schemaFields[i], true
}

// Canonicalize resolves a label or alias to a schema field.
// Matching ignores case, surrounding space, and treats spaces and hyphens like underscores.
func Canonicalize(input string) (Field, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	if _, ok := fieldIndex[Field(normalized)]; ok {
		return Field(normalized), true
	}
	if f, ok := fieldAliases[normalized]; ok {
		return f, true
	}
	return "", false
}
