package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleResponses() []Response {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []Response{
		{SessionID: "s1", DocumentID: "doc-a", Step: "upload", Attempt: 1, StatusCode: 500, Body: []byte(`{"error":"boom"}`), Error: "status 500", At: at},
		{SessionID: "s1", DocumentID: "doc-a", Step: "upload", Attempt: 2, StatusCode: 200, Body: []byte(`{"jobId":"j1"}`), At: at.Add(time.Second)},
		{SessionID: "s1", DocumentID: "doc-b", Step: "upload", Attempt: 1, StatusCode: 200, Body: []byte(`{"jobId":"j2"}`), At: at.Add(2 * time.Second)},
	}
}

func exerciseRepository(t *testing.T, repo ResponseRepository) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sampleResponses() {
		if err := repo.SaveResponse(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := repo.ListResponses(ctx, "doc-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d responses for doc-a, want 2", len(got))
	}
	if string(got[0].Body) != `{"error":"boom"}` || got[0].StatusCode != 500 || got[0].Error == "" {
		t.Fatalf("first response not kept verbatim: %+v", got[0])
	}
	if got[1].Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", got[1].Attempt)
	}

	all, err := repo.ListResponses(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d responses, want 3", len(all))
	}
}

func exerciseSequencedReplies(t *testing.T, repo ResponseRepository) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	replies := []Response{
		{SessionID: "s1", DocumentID: "doc-c", Step: "schema", Attempt: 1, Seq: 1, Path: "POST /schema/autogenerate", StatusCode: 200, Body: []byte(`{"jobId":"j"}`), At: at},
		{SessionID: "s1", DocumentID: "doc-c", Step: "schema", Attempt: 1, Seq: 2, Path: "GET /job/j", StatusCode: 200, Body: []byte(`{"status":"failed"}`), Error: "job j failed", At: at},
	}
	for _, r := range replies {
		if err := repo.SaveResponse(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := repo.ListResponses(ctx, "doc-c")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d replies, want 2", len(got))
	}
	for i, want := range replies {
		if got[i].Seq != want.Seq || got[i].Path != want.Path || string(got[i].Body) != string(want.Body) || got[i].Error != want.Error {
			t.Fatalf("reply %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestFileResponseRepository_SequencedReplies(t *testing.T) {
	exerciseSequencedReplies(t, NewFileResponseRepository(t.TempDir(), discard()))
}

func TestFileResponseRepository(t *testing.T) {
	exerciseRepository(t, NewFileResponseRepository(t.TempDir(), discard()))
}

func TestFileResponseRepository_Empty(t *testing.T) {
	got, err := NewFileResponseRepository(t.TempDir(), discard()).ListResponses(context.Background(), "x")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSQLResponseRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "responses.db")}, discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close(discard()) })

	if err := Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}
	// Migrate twice must be harmless.
	if err := Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := db.HealthCheck(ctx, time.Second, discard()); err != nil {
		t.Fatal(err)
	}
	repo := NewSQLResponseRepository(db, discard())
	exerciseRepository(t, repo)
	exerciseSequencedReplies(t, repo)
}

func TestRebindPostgres(t *testing.T) {
	r := &sqlResponseRepo{db: &DB{Dialect: DialectPostgres}}
	got := r.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	if got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("rebind = %q", got)
	}
}
