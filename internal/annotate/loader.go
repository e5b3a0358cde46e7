package annotate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps an annotation file key (document ID or file stem) to a document ID.
type Resolver interface {
	ResolveID(key string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(key string) (string, bool)

func (f ResolverFunc) ResolveID(key string) (string, bool) { return f(key) }

type fileRecord struct {
	DocID         string           `json:"doc_id"`
	PageIndex     *int             `json:"page_index"`
	RowID         int              `json:"row_id"`
	Timestamp     string           `json:"timestamp"`
	FormatVersion string           `json:"format_version"`
	Format        string           `json:"format"`
	Annotations   []fileAnnotation `json:"annotations"`
}

type fileAnnotation struct {
	BBox         []float64 `json:"bbox"`
	Cell         *fileCell `json:"cell"`
	Label        string    `json:"label"`
	Value        string    `json:"value"`
	Source       string    `json:"source"`
	Format       string    `json:"format"`
	PageWidth    float64   `json:"page_width"`
	PageHeight   float64   `json:"page_height"`
	SourceWidth  float64   `json:"source_width"`
	SourceHeight float64   `json:"source_height"`
	Confidence   float64   `json:"confidence"`
}

type fileCell struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// LoadIssue is a line that could not be turned into raw annotations.
type LoadIssue struct {
	File   string
	Line   int
	Reason string
}

// LoadResult holds raw annotations grouped by document ID.
type LoadResult struct {
	ByDocument map[string][]Raw
	Records    map[string]int // upstream records (UI actions) per document
	Issues     []LoadIssue
	Unmatched  []string // annotation files that match no known document
}

// Loader reads per-document JSONL annotation files.
type Loader struct {
	Dir      string
	Resolver Resolver
	logger   *slog.Logger
}

func NewLoader(dir string, resolver Resolver, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Dir: dir, Resolver: resolver, logger: logger}
}

// Load reads every *.jsonl file under Dir. A missing directory yields an empty result.
func (l *Loader) Load() (LoadResult, error) {
	res := LoadResult{ByDocument: map[string][]Raw{}, Records: map[string]int{}}

	files, err := filepath.Glob(filepath.Join(l.Dir, "*.jsonl"))
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		l.logger.Warn("annotate.load.empty", "dir", l.Dir)
		return res, nil
	}
	sort.Strings(files)

	for _, file := range files {
		key := strings.TrimSuffix(filepath.Base(file), ".jsonl")
		docID, ok := l.resolve(key)
		if !ok {
			res.Unmatched = append(res.Unmatched, file)
			l.logger.Warn("annotate.load.unmatched", "file", file)
			continue
		}
		if err := l.loadFile(file, docID, &res); err != nil {
			return res, fmt.Errorf("read %s: %w", file, err)
		}
	}

	l.logger.Info("annotate.load.ok",
		"files", len(files),
		"documents", len(res.ByDocument),
		"issues", len(res.Issues),
		"unmatched", len(res.Unmatched),
	)
	return res, nil
}

func (l *Loader) resolve(key string) (string, bool) {
	if l.Resolver == nil {
		return key, true
	}
	return l.Resolver.ResolveID(key)
}

func (l *Loader) loadFile(file, docID string, res *LoadResult) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			res.Issues = append(res.Issues, LoadIssue{File: file, Line: line, Reason: "invalid json: " + err.Error()})
			continue
		}
		if rec.PageIndex == nil {
			res.Issues = append(res.Issues, LoadIssue{File: file, Line: line, Reason: "missing page_index"})
			continue
		}
		res.Records[docID]++
		for i, a := range rec.Annotations {
			raw, reason := toRaw(docID, *rec.PageIndex, rec.Format, a)
			if reason != "" {
				res.Issues = append(res.Issues, LoadIssue{File: file, Line: line, Reason: fmt.Sprintf("annotation %d: %s", i, reason)})
				continue
			}
			res.ByDocument[docID] = append(res.ByDocument[docID], raw)
		}
	}
	return sc.Err()
}

func toRaw(docID string, page int, recordFormat string, a fileAnnotation) (Raw, string) {
	format := Format(a.Format)
	if format == "" {
		format = Format(recordFormat)
	}
	if format == "" {
		format = FormatAbsolute
	}

	raw := Raw{
		DocumentID:   docID,
		Page:         page,
		Label:        a.Label,
		Value:        a.Value,
		Source:       a.Source,
		Confidence:   a.Confidence,
		Format:       format,
		PageWidth:    a.PageWidth,
		PageHeight:   a.PageHeight,
		SourceWidth:  a.SourceWidth,
		SourceHeight: a.SourceHeight,
	}

	if format == FormatTableCell {
		if a.Cell == nil {
			return raw, "table_cell annotation without cell"
		}
		raw.Cell = Cell{X0: a.Cell.X0, Y0: a.Cell.Y0, X1: a.Cell.X1, Y1: a.Cell.Y1}
		return raw, ""
	}
	if len(a.BBox) != 4 {
		return raw, fmt.Sprintf("bbox needs 4 numbers, got %d", len(a.BBox))
	}
	raw.Box = Box{X: a.BBox[0], Y: a.BBox[1], W: a.BBox[2], H: a.BBox[3]}
	return raw, ""
}
