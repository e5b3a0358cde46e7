package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Response is one raw reply from the extraction service, kept verbatim for audit.
type Response struct {
	SessionID  string    `json:"session_id"`
	DocumentID string    `json:"doc_id"`
	Step       string    `json:"step"`
	Attempt    int       `json:"attempt"`
	Seq        int       `json:"seq,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"-"`
	BodyPath   string    `json:"body_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

type ResponseRepository interface {
	SaveResponse(ctx context.Context, r Response) error
	ListResponses(ctx context.Context, documentID string) ([]Response, error)
}

// FileResponseRepository writes each body to <Dir>/<doc>/<session>_<step>_<attempt>[_<seq>].json
// and keeps an index.jsonl of metadata.
type FileResponseRepository struct {
	Dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewFileResponseRepository(dir string, logger *slog.Logger) *FileResponseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileResponseRepository{Dir: dir, logger: logger}
}

func (r *FileResponseRepository) SaveResponse(ctx context.Context, resp Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docDir := filepath.Join(r.Dir, safeSegment(resp.DocumentID))
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s_%d.json", safeSegment(resp.SessionID), safeSegment(resp.Step), resp.Attempt)
	if resp.Seq > 0 {
		name = fmt.Sprintf("%s_%s_%d_%03d.json", safeSegment(resp.SessionID), safeSegment(resp.Step), resp.Attempt, resp.Seq)
	}
	resp.BodyPath = filepath.Join(docDir, name)
	if err := os.WriteFile(resp.BodyPath, resp.Body, 0o644); err != nil {
		r.logger.Error("failed to save response", "doc_id", resp.DocumentID, "step", resp.Step, "error", err)
		return err
	}

	line, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(r.Dir, "index.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *FileResponseRepository) ListResponses(ctx context.Context, documentID string) ([]Response, error) {
	r.mu.Lock()
	b, err := os.ReadFile(filepath.Join(r.Dir, "index.jsonl"))
	r.mu.Unlock()
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Response
	for _, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return nil, fmt.Errorf("decode response index: %w", err)
		}
		if documentID != "" && resp.DocumentID != documentID {
			continue
		}
		if resp.Body, err = os.ReadFile(resp.BodyPath); err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func safeSegment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
