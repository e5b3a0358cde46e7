package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/common"
)

func outcome(id string, o constants.Outcome, valid int) Outcome {
	state := constants.StateSucceeded
	switch o {
	case constants.OutcomeFailure:
		state = constants.StateFailed
	case constants.OutcomeSkipped:
		state = constants.StateSkipped
	}
	return Outcome{DocumentID: id, SessionID: "s1", Outcome: o, State: state, Records: valid, ValidRecords: valid}
}

func TestCheckpoint_LastOutcomeWins(t *testing.T) {
	cp := New("s1")
	cp.Record(outcome("A", constants.OutcomeFailure, 0))
	cp.Record(outcome("B", constants.OutcomeSkipped, 0))
	cp.Record(outcome("A", constants.OutcomeSuccess, 4))

	if got := cp.Processed()["A"].Outcome; got != constants.OutcomeSuccess {
		t.Fatalf("A effective outcome = %s, want success", got)
	}
	want := Counters{Processed: 2, Succeeded: 1, Skipped: 1, Records: 4, ValidRecords: 4}
	if cp.Counters != want {
		t.Fatalf("counters = %+v, want %+v", cp.Counters, want)
	}
}

func TestResume_CarriesOutcomes(t *testing.T) {
	prev := New("s0")
	prev.Record(outcome("A", constants.OutcomeSuccess, 2))

	cp := Resume("s1", prev)
	if cp.ResumedFrom != "s0" {
		t.Fatalf("resumed_from = %q", cp.ResumedFrom)
	}
	if _, ok := cp.Processed()["A"]; !ok {
		t.Fatal("expected A to carry over")
	}
	cp.Record(outcome("B", constants.OutcomeFailure, 0))
	if len(prev.Outcomes) != 1 {
		t.Fatal("resume must not mutate the previous checkpoint")
	}
}

func outcomeAt(id, session string, o constants.Outcome, at time.Time) Outcome {
	out := outcome(id, o, 1)
	out.SessionID = session
	out.At = at
	return out
}

func TestCheckpoint_Replay(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	cp := New("s2")
	cp.Record(outcomeAt("A", "s2", constants.OutcomeSuccess, base))
	cp.Record(outcomeAt("B", "s2", constants.OutcomeSuccess, base.Add(2*time.Minute)))

	journal := []Outcome{
		outcomeAt("A", "s2", constants.OutcomeSuccess, base),
		outcomeAt("B", "s1", constants.OutcomeFailure, base.Add(time.Minute)),
		outcomeAt("D", "s2", constants.OutcomeSkipped, base.Add(4*time.Minute)),
		outcomeAt("C", "s2", constants.OutcomeSuccess, base.Add(3*time.Minute)),
	}
	if n := cp.Replay(journal); n != 2 {
		t.Fatalf("replayed %d outcomes, want 2", n)
	}
	var order []string
	for _, o := range cp.Outcomes {
		order = append(order, o.DocumentID)
	}
	if got := strings.Join(order, ","); got != "A,B,C,D" {
		t.Fatalf("outcome order = %s, want A,B,C,D", got)
	}
	if cp.Processed()["B"].Outcome != constants.OutcomeSuccess {
		t.Fatal("an older journaled outcome must not supersede the snapshot")
	}
	if cp.Counters.Processed != 4 || cp.Counters.Skipped != 1 {
		t.Fatalf("counters = %+v", cp.Counters)
	}
	if n := cp.Replay(journal); n != 0 {
		t.Fatalf("second replay added %d outcomes", n)
	}
}

func TestFileStore_LoadReplaysJournal(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.Add(time.Minute) }

	a := outcomeAt("A", "s1", constants.OutcomeSuccess, base)
	b := outcomeAt("B", "s1", constants.OutcomeFailure, base.Add(2*time.Minute))
	for _, o := range []Outcome{a, b} {
		if err := s.Append(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	cp := New("s1")
	cp.Record(a)
	if _, err := s.AtomicWrite(ctx, cp); err != nil {
		t.Fatal(err)
	}
	// A crash while writing leaves a partial line behind.
	f, err := os.OpenFile(filepath.Join(s.Dir, "journal_s1.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"doc_id":"C","sess`); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || len(got.Outcomes) != 2 {
		t.Fatalf("loaded %+v", got)
	}
	if got.Processed()["B"].Outcome != constants.OutcomeFailure || got.Counters.Failed != 1 {
		t.Fatalf("journaled outcome for B not replayed: %+v", got.Counters)
	}
}

func TestFileStore_LoadJournalWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B"} {
		if err := s.Append(ctx, outcomeAt(id, "s9", constants.OutcomeSuccess, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.SessionID != "s9" || got.Counters.Succeeded != 2 {
		t.Fatalf("loaded %+v", got)
	}
	journal, err := s.Journal(ctx, "s9")
	if err != nil || len(journal) != 2 {
		t.Fatalf("journal = %+v, %v", journal, err)
	}
}

func TestFileStore_RoundTripAndLatest(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return base }

	if cp, err := s.Load(ctx); err != nil || cp != nil {
		t.Fatalf("empty store: cp=%v err=%v", cp, err)
	}

	first := New("s1")
	first.Record(outcome("A", constants.OutcomeSuccess, 1))
	if _, err := s.AtomicWrite(ctx, first); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(time.Second) }
	second := first.Clone()
	second.Record(outcome("B", constants.OutcomeFailure, 0))
	path, err := s.AtomicWrite(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != s.Dir {
		t.Fatalf("snapshot written outside dir: %s", path)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Outcomes) != 2 || got.Counters.Failed != 1 {
		t.Fatalf("loaded %+v", got)
	}

	tmps, _ := filepath.Glob(filepath.Join(s.Dir, ".checkpoint-*"))
	if len(tmps) != 0 {
		t.Fatalf("temp files left behind: %v", tmps)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "checkpoint_20260101T000000.000000000Z_s1.json"), []byte("{trunc"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(dir, nil).Load(context.Background())
	if !errors.Is(err, common.ErrCheckpointCorrupt) {
		t.Fatalf("err = %v, want ErrCheckpointCorrupt", err)
	}
}

func TestFileStore_AppendJournal(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	for _, id := range []string{"A", "B"} {
		if err := s.Append(context.Background(), outcome(id, constants.OutcomeSuccess, 1)); err != nil {
			t.Fatal(err)
		}
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, "journal_s1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := len(splitLines(b)); lines != 2 {
		t.Fatalf("journal lines = %d, want 2", lines)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "test", nil)
	if cp, err := s.Load(ctx); err != nil || cp != nil {
		t.Fatalf("empty store: cp=%v err=%v", cp, err)
	}

	cp := New("s1")
	cp.Record(outcome("A", constants.OutcomeSuccess, 3))
	if err := s.Append(ctx, cp.Outcomes[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AtomicWrite(ctx, cp); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || got.Counters.ValidRecords != 3 {
		t.Fatalf("loaded %+v", got)
	}
	journal, err := s.Journal(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(journal) != 1 || journal[0].DocumentID != "A" {
		t.Fatalf("journal = %+v", journal)
	}

	later := outcomeAt("B", "s1", constants.OutcomeSkipped, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	if err := s.Append(ctx, later); err != nil {
		t.Fatal(err)
	}
	replayed, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(replayed.Outcomes) != 2 || replayed.Counters.Skipped != 1 {
		t.Fatalf("journaled outcome not replayed: %+v", replayed)
	}

	mr.Set("test:checkpoint:latest", "not json")
	if _, err := s.Load(ctx); !errors.Is(err, common.ErrCheckpointCorrupt) {
		t.Fatalf("err = %v, want ErrCheckpointCorrupt", err)
	}
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, b[start:i])
			}
			start = i + 1
		}
	}
	return out
}
