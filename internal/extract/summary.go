package extract

import (
	"fmt"
	"io"
	"time"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/checkpoint"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

// Summary reports one engine run. Session counts cover this run only; Counters are
// cumulative over every session the checkpoint carries.
type Summary struct {
	SessionID      string
	ResumedFrom    string
	Total          int
	Pending        int
	Resumed        int
	Succeeded      int
	Failed         int
	Skipped        int
	Records        int
	ValidRecords   int
	Interrupted    bool
	CheckpointPath string
	Counters       checkpoint.Counters
	Failures       []checkpoint.Outcome
	Outcomes       []checkpoint.Outcome
	Scored         []quality.Scored
	Elapsed        time.Duration
}

func (s *Summary) add(o checkpoint.Outcome, records []quality.Scored) {
	switch o.Outcome {
	case constants.OutcomeSuccess:
		s.Succeeded++
	case constants.OutcomeFailure:
		s.Failed++
		s.Failures = append(s.Failures, o)
	case constants.OutcomeSkipped:
		s.Skipped++
	}
	s.Outcomes = append(s.Outcomes, o)
	s.Records += o.Records
	s.ValidRecords += o.ValidRecords
	s.Scored = append(s.Scored, records...)
}

// Fprint writes a human-readable report of s.
func (s *Summary) Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, "session %s", s.SessionID)
	if s.ResumedFrom != "" {
		_, _ = fmt.Fprintf(w, " (resumed from %s)", s.ResumedFrom)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "documents: %d total, %d pending, %d already processed\n", s.Total, s.Pending, s.Resumed)
	_, _ = fmt.Fprintf(w, "this run:  %d succeeded, %d failed, %d skipped\n", s.Succeeded, s.Failed, s.Skipped)
	_, _ = fmt.Fprintf(w, "records:   %d extracted, %d valid\n", s.Records, s.ValidRecords)
	_, _ = fmt.Fprintf(w, "all runs:  %d processed, %d succeeded, %d failed, %d skipped\n",
		s.Counters.Processed, s.Counters.Succeeded, s.Counters.Failed, s.Counters.Skipped)
	if s.Interrupted {
		_, _ = fmt.Fprintln(w, "run was interrupted; pending documents will be picked up on the next run")
	}
	for _, f := range s.Failures {
		_, _ = fmt.Fprintf(w, "  failed %s (%s): %s\n", f.DocumentID, f.Name, f.Reason)
	}
	if s.CheckpointPath != "" {
		_, _ = fmt.Fprintf(w, "checkpoint: %s\n", s.CheckpointPath)
	}
}
