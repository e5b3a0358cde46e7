package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/plansets/internal/common"
)

const (
	snapshotPrefix = "checkpoint_"
	journalPrefix  = "journal_"
	stampLayout    = "20060102T150405.000000000Z"
)

// FileStore keeps timestamped JSON snapshots and per-session JSONL journals in Dir.
type FileStore struct {
	Dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Dir: dir, logger: logger, now: time.Now}
}

func (s *FileStore) Load(ctx context.Context) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := s.loadSnapshot()
	if err != nil {
		return nil, err
	}

	journal, err := s.journals()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = fromJournal(journal)
		if cp != nil {
			s.logger.Warn("checkpoint.journal.replayed", "session_id", cp.SessionID, "outcomes", len(cp.Outcomes), "snapshot", false)
		}
		return cp, nil
	}
	if n := cp.Replay(journal); n > 0 {
		s.logger.Warn("checkpoint.journal.replayed", "session_id", cp.SessionID, "outcomes", n, "snapshot", true)
	}
	return cp, nil
}

func (s *FileStore) loadSnapshot() (*Checkpoint, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, snapshotPrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", latest, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrCheckpointCorrupt, latest, err)
	}
	s.logger.Info("checkpoint.load.ok", "path", latest, "session_id", cp.SessionID, "outcomes", len(cp.Outcomes))
	return &cp, nil
}

// Journal returns the journaled outcomes of a session.
func (s *FileStore) Journal(ctx context.Context, sessionID string) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.readJournal(filepath.Join(s.Dir, journalPrefix+sanitize(sessionID)+".jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return out, err
}

func (s *FileStore) journals() ([]Outcome, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, journalPrefix+"*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []Outcome
	for _, p := range paths {
		list, err := s.readJournal(p)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// readJournal decodes one JSONL journal. A line that does not decode, such as
// one cut short by a crash, is skipped.
func (s *FileStore) readJournal(path string) ([]Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []Outcome
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var o Outcome
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			s.logger.Warn("checkpoint.journal.bad_line", "path", path, "line", line, "error", err)
			continue
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", path, err)
	}
	return out, nil
}

func (s *FileStore) Append(ctx context.Context, o Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	path := filepath.Join(s.Dir, journalPrefix+sanitize(o.SessionID)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// AtomicWrite writes the snapshot to a temp file in Dir, syncs it and renames it
// into place, so a crash never leaves a truncated snapshot behind.
func (s *FileStore) AtomicWrite(ctx context.Context, cp *Checkpoint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	now := s.now().UTC()
	cp.CreatedAt = now

	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	final := filepath.Join(s.Dir, fmt.Sprintf("%s%s_%s.json", snapshotPrefix, now.Format(stampLayout), sanitize(cp.SessionID)))
	tmp, err := os.CreateTemp(s.Dir, ".checkpoint-*.tmp")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", err
	}

	s.logger.Debug("checkpoint.write.ok", "path", final, "outcomes", len(cp.Outcomes))
	return final, nil
}

func sanitize(id string) string {
	if id == "" {
		return "session"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
