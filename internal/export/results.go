package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/checkpoint"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

// ResultSet is the output of one extraction session.
type ResultSet struct {
	SessionID   string
	GeneratedAt time.Time
	Records     []quality.Scored
	Outcomes    []checkpoint.Outcome
}

// ResultFiles lists what WriteResults produced.
type ResultFiles struct {
	XLSX    string
	CSV     string
	Parquet string
}

// ResultsExporter writes extraction results as XLSX, CSV and Parquet.
type ResultsExporter struct {
	Dir    string
	logger *slog.Logger
}

func NewResultsExporter(dir string, logger *slog.Logger) *ResultsExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsExporter{Dir: dir, logger: logger}
}

// WriteResults writes results_<stamp>.{xlsx,csv,parquet}. An empty record set is an error.
func (x *ResultsExporter) WriteResults(rs ResultSet) (ResultFiles, error) {
	start := time.Now()
	if len(rs.Records) == 0 {
		return ResultFiles{}, errNoRecords
	}
	if rs.GeneratedAt.IsZero() {
		rs.GeneratedAt = time.Now()
	}
	if err := os.MkdirAll(x.Dir, 0o755); err != nil {
		return ResultFiles{}, err
	}
	base := filepath.Join(x.Dir, "results_"+rs.GeneratedAt.UTC().Format("20060102_150405"))
	files := ResultFiles{XLSX: base + ".xlsx", CSV: base + ".csv", Parquet: base + ".parquet"}

	if err := writeFile(files.XLSX, func(w io.Writer) error { return WriteXLSX(w, rs) }); err != nil {
		return files, fmt.Errorf("xlsx write: %w", err)
	}
	if err := writeFile(files.CSV, func(w io.Writer) error { return WriteCSV(w, rs.Records) }); err != nil {
		return files, fmt.Errorf("csv write: %w", err)
	}
	if err := writeFile(files.Parquet, func(w io.Writer) error { return WriteParquet(w, rs.Records) }); err != nil {
		return files, fmt.Errorf("parquet write: %w", err)
	}

	x.logger.Info("export.results.ok",
		"session_id", rs.SessionID,
		"rows", len(rs.Records),
		"xlsx", files.XLSX,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return files, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// recordHeaders is the column order shared by the XLSX and CSV exports.
func recordHeaders() []string {
	h := []string{"doc_id", "extraction_method"}
	h = append(h, constants.AsStringSlice()...)
	return append(h, "valid", "completeness", "quality_score", "issues", "source_text")
}

func recordRow(s quality.Scored) []string {
	row := []string{s.DocumentID, s.Method}
	for _, f := range constants.SchemaFields() {
		row = append(row, s.Get(f))
	}
	return append(row,
		strconv.FormatBool(s.Score.Valid),
		strconv.FormatFloat(s.Score.Completeness, 'f', 4, 64),
		strconv.FormatFloat(s.Score.Weighted, 'f', 1, 64),
		s.Score.IssueText(),
		truncate(s.SourceText, 500),
	)
}

// WriteCSV writes one row per record.
func WriteCSV(w io.Writer, records []quality.Scored) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordHeaders()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(recordRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the All_Extractions, High_Quality_Data, Session_Statistics and
// Document_Summary sheets.
func WriteXLSX(w io.Writer, rs ResultSet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const (
		allSheet     = "All_Extractions"
		highSheet    = "High_Quality_Data"
		statsSheet   = "Session_Statistics"
		summarySheet = "Document_Summary"
	)
	if err := f.SetSheetName("Sheet1", allSheet); err != nil {
		return err
	}
	for _, s := range []string{highSheet, statsSheet, summarySheet} {
		if _, err := f.NewSheet(s); err != nil {
			return err
		}
	}

	headers := recordHeaders()
	var high []quality.Scored
	for _, r := range rs.Records {
		if r.Score.Weighted >= quality.HighQualityThreshold {
			high = append(high, r)
		}
	}
	writeRecords := func(sheet string, records []quality.Scored) {
		writeRow(f, sheet, 1, cells(headers)...)
		for i, r := range records {
			writeRow(f, sheet, i+2, cells(recordRow(r))...)
		}
		_ = f.SetColWidth(sheet, "A", "A", 20)
		_ = f.SetColWidth(sheet, "C", "Q", 16)
	}
	writeRecords(allSheet, rs.Records)
	writeRecords(highSheet, high)

	a := quality.Assess(rs.Records)
	stats := [][]any{
		{"Metric", "Value"},
		{"session_id", rs.SessionID},
		{"generated_at", rs.GeneratedAt.UTC().Format(time.RFC3339)},
		{"total_records", a.TotalRecords},
		{"valid_records", a.ValidRecords},
		{"high_quality_records", a.HighQualityRecords},
		{"records_with_structure_ids", a.WithStructureIDs},
		{"records_with_elevations", a.WithElevations},
		{"records_with_pipe_specs", a.WithPipeSpecs},
		{"records_with_materials", a.WithMaterials},
		{"complete_records", a.CompleteRecords},
		{"mean_completeness", a.MeanCompleteness},
		{"mean_quality_score", a.MeanWeighted},
		{"validity_percentage", a.ValidityPercentage},
		{"completeness_percentage", a.CompletenessPercentage},
	}
	for i, row := range stats {
		writeRow(f, statsSheet, i+1, row...)
	}
	_ = f.SetColWidth(statsSheet, "A", "A", 30)

	writeRow(f, summarySheet, 1, "doc_id", "filename", "outcome", "state", "reason", "records", "valid_records", "mean_quality_score")
	perDoc := meanWeightedByDocument(rs.Records)
	outcomes := append([]checkpoint.Outcome(nil), rs.Outcomes...)
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].DocumentID < outcomes[j].DocumentID })
	for i, o := range outcomes {
		writeRow(f, summarySheet, i+2, o.DocumentID, o.Name, string(o.Outcome), string(o.State), o.Reason, o.Records, o.ValidRecords, perDoc[o.DocumentID])
	}
	_ = f.SetColWidth(summarySheet, "A", "B", 24)
	_ = f.SetColWidth(summarySheet, "E", "E", 40)

	_, err := f.WriteTo(w)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func cells(vs []string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func meanWeightedByDocument(records []quality.Scored) map[string]float64 {
	sum := map[string]float64{}
	n := map[string]int{}
	for _, r := range records {
		sum[r.DocumentID] += r.Score.Weighted
		n[r.DocumentID]++
	}
	out := make(map[string]float64, len(sum))
	for id, s := range sum {
		out[id] = s / float64(n[id])
	}
	return out
}

// ParquetRow is the columnar form of one scored record.
type ParquetRow struct {
	DocumentID         string  `parquet:"doc_id"`
	Method             string  `parquet:"extraction_method"`
	FromStructureID    string  `parquet:"from_structure_id"`
	FromStructureType  string  `parquet:"from_structure_type"`
	Casting            string  `parquet:"casting"`
	Location           string  `parquet:"location"`
	RimElevFt          string  `parquet:"rim_elev_ft"`
	OutletInvertElevFt string  `parquet:"outlet_invert_elev_ft"`
	SumpElevFt         string  `parquet:"sump_elev_ft"`
	ToStructureID      string  `parquet:"to_structure_id"`
	InletInvertElevFt  string  `parquet:"inlet_invert_elev_ft"`
	PipeDiameterIn     string  `parquet:"pipe_diameter_in"`
	PipeType           string  `parquet:"pipe_type"`
	RunLengthFt        string  `parquet:"run_length_ft"`
	LengthInPvmtFt     string  `parquet:"length_in_pvmt_ft"`
	LengthInRoadFt     string  `parquet:"length_in_road_ft"`
	PipeMaterial       string  `parquet:"pipe_material"`
	Valid              bool    `parquet:"valid"`
	Completeness       float64 `parquet:"completeness"`
	QualityScore       float64 `parquet:"quality_score"`
	Issues             string  `parquet:"issues"`
}

func toParquetRow(s quality.Scored) ParquetRow {
	return ParquetRow{
		DocumentID:         s.DocumentID,
		Method:             s.Method,
		FromStructureID:    s.Get(constants.FromStructureID),
		FromStructureType:  s.Get(constants.FromStructureType),
		Casting:            s.Get(constants.Casting),
		Location:           s.Get(constants.Location),
		RimElevFt:          s.Get(constants.RimElevFt),
		OutletInvertElevFt: s.Get(constants.OutletInvertElevFt),
		SumpElevFt:         s.Get(constants.SumpElevFt),
		ToStructureID:      s.Get(constants.ToStructureID),
		InletInvertElevFt:  s.Get(constants.InletInvertElevFt),
		PipeDiameterIn:     s.Get(constants.PipeDiameterIn),
		PipeType:           s.Get(constants.PipeType),
		RunLengthFt:        s.Get(constants.RunLengthFt),
		LengthInPvmtFt:     s.Get(constants.LengthInPvmtFt),
		LengthInRoadFt:     s.Get(constants.LengthInRoadFt),
		PipeMaterial:       s.Get(constants.PipeMaterial),
		Valid:              s.Score.Valid,
		Completeness:       s.Score.Completeness,
		QualityScore:       s.Score.Weighted,
		Issues:             s.Score.IssueText(),
	}
}

// WriteParquet writes records in columnar form.
func WriteParquet(w io.Writer, records []quality.Scored) error {
	rows := make([]ParquetRow, len(records))
	for i, r := range records {
		rows[i] = toParquetRow(r)
	}
	pw := parquet.NewGenericWriter[ParquetRow](w)
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

// ReadParquet loads rows written by WriteParquet.
func ReadParquet(path string) ([]ParquetRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ParquetRow](pf)
	defer reader.Close()

	var out []ParquetRow
	rows := make([]ParquetRow, 128)
	for {
		n, err := reader.Read(rows)
		out = append(out, rows[:n]...)
		if err != nil {
			break
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
