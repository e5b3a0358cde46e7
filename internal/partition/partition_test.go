package partition

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/common"
)

func inputs(n int, annotations int) []Input {
	out := make([]Input, n)
	for i := range out {
		out[i] = Input{DocumentID: fmt.Sprintf("doc-%04d", i), Annotations: annotations}
	}
	return out
}

func defaultOptions() Options {
	return Options{
		Ratios:            Ratios{Train: 0.7, Val: 0.2, Test: 0.1},
		Seed:              "42",
		MinAnnotations:    1,
		SmallSetThreshold: 30,
	}
}

func TestPartitionSmallSetExactQuotas(t *testing.T) {
	a, err := Partition(inputs(10, 5), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if a.Mode != ModeQuota {
		t.Errorf("expected quota mode, got %s", a.Mode)
	}
	c := a.Counts()
	if c[constants.SplitTrain] != 7 || c[constants.SplitVal] != 2 || c[constants.SplitTest] != 1 {
		t.Errorf("expected 7/2/1, got %v", c)
	}
}

func TestPartitionSmallSetKeepsEverySplitNonEmpty(t *testing.T) {
	a, err := Partition(inputs(3, 1), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	c := a.Counts()
	for _, s := range constants.Splits {
		if c[s] != 1 {
			t.Errorf("expected one document in %s, got %v", s, c)
		}
	}
}

func TestStabilityWarning(t *testing.T) {
	small, err := Partition(inputs(29, 1), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	w := small.StabilityWarning()
	if !strings.Contains(w, "29 documents") || !strings.Contains(w, "threshold of 30") {
		t.Errorf("unexpected warning for quota mode: %q", w)
	}

	large, err := Partition(inputs(30, 1), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if large.Mode != ModeHash || large.StabilityWarning() != "" {
		t.Errorf("expected hash mode without warning, got %s %q", large.Mode, large.StabilityWarning())
	}
}

func TestPartitionDeterministic(t *testing.T) {
	for _, n := range []int{10, 200} {
		in := inputs(n, 2)
		first, err := Partition(in, defaultOptions())
		if err != nil {
			t.Fatalf("Partition: %v", err)
		}
		// Input order must not matter.
		reversed := make([]Input, len(in))
		for i := range in {
			reversed[len(in)-1-i] = in[i]
		}
		second, err := Partition(reversed, defaultOptions())
		if err != nil {
			t.Fatalf("Partition: %v", err)
		}
		for id, s := range first.Splits {
			if second.Splits[id] != s {
				t.Errorf("n=%d: %s moved from %s to %s", n, id, s, second.Splits[id])
			}
		}
	}
}

func TestPartitionStableUnderGrowth(t *testing.T) {
	before, err := Partition(inputs(100, 3), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if before.Mode != ModeHash {
		t.Fatalf("expected hash mode, got %s", before.Mode)
	}
	after, err := Partition(inputs(150, 3), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	for id, s := range before.Splits {
		if after.Splits[id] != s {
			t.Errorf("%s moved from %s to %s after adding documents", id, s, after.Splits[id])
		}
	}
}

func TestPartitionHashRatios(t *testing.T) {
	a, err := Partition(inputs(5000, 1), defaultOptions())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	c := a.Counts()
	for s, want := range map[constants.Split]float64{constants.SplitTrain: 0.7, constants.SplitVal: 0.2, constants.SplitTest: 0.1} {
		got := float64(c[s]) / 5000
		if math.Abs(got-want) > 0.03 {
			t.Errorf("%s: expected about %.2f, got %.3f", s, want, got)
		}
	}
}

func TestPartitionSeedChangesAssignment(t *testing.T) {
	opts := defaultOptions()
	a, _ := Partition(inputs(100, 1), opts)
	opts.Seed = "other"
	b, _ := Partition(inputs(100, 1), opts)
	moved := 0
	for id, s := range a.Splits {
		if b.Splits[id] != s {
			moved++
		}
	}
	if moved == 0 {
		t.Error("expected a different seed to change some assignments")
	}
}

func TestPartitionExclusions(t *testing.T) {
	in := []Input{
		{DocumentID: "keep", Annotations: 4},
		{DocumentID: "thin", Annotations: 1},
		{DocumentID: "", Annotations: 9},
		{DocumentID: "keep", Annotations: 4},
	}
	opts := defaultOptions()
	opts.MinAnnotations = 2
	a, err := Partition(in, opts)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(a.Splits) != 1 {
		t.Errorf("expected only one assigned document, got %v", a.Splits)
	}
	if _, ok := a.SplitOf("thin"); ok {
		t.Error("under-annotated document was assigned")
	}
	if len(a.Excluded) != 2 {
		t.Fatalf("expected 2 exclusions, got %+v", a.Excluded)
	}
	if a.Excluded[1].DocumentID != "thin" || a.Excluded[1].Annotations != 1 {
		t.Errorf("unexpected exclusion %+v", a.Excluded[1])
	}
}

func TestPartitionErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []Input
		r    Ratios
	}{
		{"ratios do not sum to one", inputs(5, 1), Ratios{Train: 0.7, Val: 0.2, Test: 0.2}},
		{"negative ratio", inputs(5, 1), Ratios{Train: 1.2, Val: -0.2, Test: 0}},
		{"nothing eligible", inputs(5, 0), Ratios{Train: 0.7, Val: 0.2, Test: 0.1}},
		{"no input", nil, Ratios{Train: 0.7, Val: 0.2, Test: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.Ratios = tt.r
			_, err := Partition(tt.in, opts)
			var perr *Error
			if !errors.As(err, &perr) || !errors.Is(err, common.ErrPartition) {
				t.Fatalf("expected *partition.Error, got %v", err)
			}
		})
	}
}

func TestDocumentsSorted(t *testing.T) {
	a := Assignment{Splits: map[string]constants.Split{"c": constants.SplitTrain, "a": constants.SplitTrain, "b": constants.SplitVal}}
	got := a.Documents(constants.SplitTrain)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("expected [a c], got %v", got)
	}
}
