package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/checkpoint"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

func sampleResults() ResultSet {
	v := quality.NewValidator()
	good := quality.Record{DocumentID: "doc-a", Method: "ai"}
	good.Set(constants.FromStructureID, "MH-1")
	good.Set(constants.ToStructureID, "MH-2")
	good.Set(constants.RimElevFt, "825.45")
	good.Set(constants.OutletInvertElevFt, "818.10")
	good.Set(constants.PipeDiameterIn, "12")
	good.Set(constants.PipeMaterial, "PVC")
	good.Set(constants.RunLengthFt, "120")

	bad := quality.Record{DocumentID: "doc-b", Method: "pattern"}
	bad.Set(constants.RimElevFt, "2500")

	return ResultSet{
		SessionID:   "s1",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Records:     v.ScoreAll([]quality.Record{good, bad}),
		Outcomes: []checkpoint.Outcome{
			{DocumentID: "doc-b", Outcome: constants.OutcomeFailure, State: constants.StateFailed, Reason: "no valid records", Records: 1},
			{DocumentID: "doc-a", Outcome: constants.OutcomeSuccess, State: constants.StateSucceeded, Records: 1, ValidRecords: 1},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rs := sampleResults()
	if err := WriteCSV(&buf, rs.Records); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "doc_id" || rows[0][2] != string(constants.FromStructureID) {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][2] != "MH-1" || rows[1][2+constants.SchemaSize] != "true" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][2+constants.SchemaSize] != "false" {
		t.Errorf("second row should be invalid: %v", rows[2])
	}
}

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	rs := sampleResults()
	files, err := NewResultsExporter(dir, nil).WriteResults(rs)
	if err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	f, err := excelize.OpenFile(files.XLSX)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	want := []string{"All_Extractions", "High_Quality_Data", "Session_Statistics", "Document_Summary"}
	sheets := f.GetSheetList()
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v", sheets)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Fatalf("sheets = %v, want %v", sheets, want)
		}
	}
	all, _ := f.GetRows("All_Extractions")
	if len(all) != 3 {
		t.Errorf("All_Extractions rows = %d, want 3", len(all))
	}
	high, _ := f.GetRows("High_Quality_Data")
	for _, row := range high[1:] {
		if row[0] != "doc-a" {
			t.Errorf("low quality record in High_Quality_Data: %v", row)
		}
	}
	summary, _ := f.GetRows("Document_Summary")
	if len(summary) != 3 || summary[1][0] != "doc-a" {
		t.Errorf("Document_Summary = %v", summary)
	}

	if _, err := os.Stat(files.CSV); err != nil {
		t.Errorf("csv: %v", err)
	}
	rows, err := ReadParquet(files.Parquet)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("parquet rows = %d, want 2", len(rows))
	}
	if rows[0].DocumentID != "doc-a" || rows[0].RimElevFt != "825.45" || !rows[0].Valid {
		t.Errorf("parquet row 0 = %+v", rows[0])
	}
	if rows[1].Valid {
		t.Errorf("parquet row 1 should be invalid: %+v", rows[1])
	}
}

func TestWriteResultsEmpty(t *testing.T) {
	_, err := NewResultsExporter(t.TempDir(), nil).WriteResults(ResultSet{SessionID: "s"})
	if !errors.Is(err, errNoRecords) {
		t.Fatalf("err = %v, want errNoRecords", err)
	}
}
