package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/checkpoint"
)

func newReportCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the outcome counts of the latest extraction checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openCheckpointStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			cp, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if cp == nil {
				fmt.Fprintln(a.out, "no checkpoint found")
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(cp)
			}
			PrintCheckpoint(a.out, cp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw checkpoint as JSON")
	return cmd
}

// PrintCheckpoint writes the counters and failures of cp.
func PrintCheckpoint(w io.Writer, cp *checkpoint.Checkpoint) {
	fmt.Fprintf(w, "session %s", cp.SessionID)
	if cp.ResumedFrom != "" {
		fmt.Fprintf(w, " (resumed from %s)", cp.ResumedFrom)
	}
	fmt.Fprintf(w, ", written %s\n", cp.CreatedAt.Format(time.RFC3339))

	c := cp.Counters
	fmt.Fprintf(w, "documents: %d processed, %d succeeded, %d failed, %d skipped\n", c.Processed, c.Succeeded, c.Failed, c.Skipped)
	fmt.Fprintf(w, "records:   %d extracted, %d valid\n", c.Records, c.ValidRecords)

	processed := cp.Processed()
	for _, id := range sortedKeys(processed) {
		o := processed[id]
		if o.Outcome != constants.OutcomeFailure {
			continue
		}
		fmt.Fprintf(w, "  failed %s (%s): %s\n", o.DocumentID, o.Name, o.Reason)
	}
}
