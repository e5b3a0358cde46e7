package checkpoint

import (
	"context"
	"sort"
	"time"

	"github.com/joseph-ayodele/plansets/constants"
)

// Outcome is the terminal result of one document.
type Outcome struct {
	DocumentID   string                  `json:"doc_id"`
	Name         string                  `json:"filename,omitempty"`
	SessionID    string                  `json:"session_id"`
	Outcome      constants.Outcome       `json:"outcome"`
	State        constants.DocumentState `json:"state"`
	Reason       string                  `json:"reason,omitempty"`
	Records      int                     `json:"records"`
	ValidRecords int                     `json:"valid_records"`
	At           time.Time               `json:"at"`
}

// Counters are cumulative statistics over the effective outcomes of a checkpoint.
type Counters struct {
	Processed    int `json:"processed"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Records      int `json:"records"`
	ValidRecords int `json:"valid_records"`
}

// Checkpoint is the durable record of processed documents. Outcomes are kept in
// the order documents reached a terminal state; a later outcome for the same
// document (forced reprocessing) supersedes an earlier one.
type Checkpoint struct {
	SessionID   string    `json:"session_id"`
	ResumedFrom string    `json:"resumed_from,omitempty"`
	CreatedAt   time.Time `json:"checkpoint_timestamp"`
	Outcomes    []Outcome `json:"outcomes"`
	Counters    Counters  `json:"counters"`
}

// New starts an empty checkpoint for session.
func New(sessionID string) *Checkpoint {
	return &Checkpoint{SessionID: sessionID, Outcomes: []Outcome{}}
}

// Resume starts a checkpoint for session that carries every outcome of prev.
func Resume(sessionID string, prev *Checkpoint) *Checkpoint {
	cp := New(sessionID)
	if prev == nil {
		return cp
	}
	cp.ResumedFrom = prev.SessionID
	cp.Outcomes = append(cp.Outcomes, prev.Outcomes...)
	cp.recount()
	return cp
}

// Record appends o and updates counters.
func (c *Checkpoint) Record(o Outcome) {
	c.Outcomes = append(c.Outcomes, o)
	c.recount()
}

// Processed maps each document to its effective outcome.
func (c *Checkpoint) Processed() map[string]Outcome {
	out := make(map[string]Outcome, len(c.Outcomes))
	for _, o := range c.Outcomes {
		out[o.DocumentID] = o
	}
	return out
}

// Clone returns a deep copy safe to serialize while c keeps changing.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.Outcomes = make([]Outcome, len(c.Outcomes))
	copy(cp.Outcomes, c.Outcomes)
	return &cp
}

// Replay appends journaled outcomes the checkpoint does not hold yet, oldest
// first, and returns how many were added. An outcome is skipped when the
// checkpoint already has one at least as recent for the same document.
func (c *Checkpoint) Replay(journal []Outcome) int {
	known := make(map[string]bool, len(c.Outcomes))
	latest := make(map[string]time.Time, len(c.Outcomes))
	for _, o := range c.Outcomes {
		known[outcomeKey(o)] = true
		if o.At.After(latest[o.DocumentID]) {
			latest[o.DocumentID] = o.At
		}
	}

	var missing []Outcome
	for _, o := range journal {
		if known[outcomeKey(o)] {
			continue
		}
		if at, ok := latest[o.DocumentID]; ok && !o.At.After(at) {
			continue
		}
		known[outcomeKey(o)] = true
		missing = append(missing, o)
	}
	if len(missing) == 0 {
		return 0
	}
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].At.Before(missing[j].At) })
	c.Outcomes = append(c.Outcomes, missing...)
	c.recount()
	return len(missing)
}

func outcomeKey(o Outcome) string {
	return o.DocumentID + "\x00" + o.SessionID + "\x00" + o.At.UTC().Format(time.RFC3339Nano)
}

// fromJournal starts a checkpoint for journaled outcomes that have no snapshot,
// named after the session of the most recent outcome.
func fromJournal(journal []Outcome) *Checkpoint {
	if len(journal) == 0 {
		return nil
	}
	last := journal[0]
	for _, o := range journal[1:] {
		if o.At.After(last.At) {
			last = o
		}
	}
	cp := New(last.SessionID)
	cp.Replay(journal)
	return cp
}

func (c *Checkpoint) recount() {
	var n Counters
	for _, o := range c.Processed() {
		n.Processed++
		switch o.Outcome {
		case constants.OutcomeSuccess:
			n.Succeeded++
		case constants.OutcomeFailure:
			n.Failed++
		case constants.OutcomeSkipped:
			n.Skipped++
		}
		n.Records += o.Records
		n.ValidRecords += o.ValidRecords
	}
	c.Counters = n
}

// Store persists checkpoints. Implementations must make AtomicWrite all-or-nothing.
type Store interface {
	// Load returns the most recent checkpoint with any outcomes journaled after it
	// replayed on top, or nil when nothing was recorded.
	Load(ctx context.Context) (*Checkpoint, error)
	// Append journals a single terminal outcome of the running session.
	Append(ctx context.Context, o Outcome) error
	// AtomicWrite persists a full snapshot and returns where it was written.
	AtomicWrite(ctx context.Context, cp *Checkpoint) (string, error)
}
