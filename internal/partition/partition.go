package partition

import (
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/common"
)

// Mode records which assignment strategy produced an Assignment.
type Mode string

const (
	// ModeHash buckets each document independently by its hash; adding documents never moves existing ones.
	ModeHash Mode = "hash"
	// ModeQuota orders documents by hash and slices exact quotas; used for small sets so no split is empty.
	ModeQuota Mode = "quota"
)

// Ratios are the requested split fractions.
type Ratios struct {
	Train, Val, Test float64
}

// Input is one candidate document and its accepted annotation count.
type Input struct {
	DocumentID  string
	Annotations int
}

// Options configure Partition.
type Options struct {
	Ratios            Ratios
	Seed              string
	MinAnnotations    int
	SmallSetThreshold int // eligible sets smaller than this use ModeQuota; <= 0 disables
}

// Exclusion is a document left out of the partition, with the reason.
type Exclusion struct {
	DocumentID  string `json:"doc_id"`
	Annotations int    `json:"annotations"`
	Reason      string `json:"reason"`
}

// Assignment maps every eligible document to exactly one split.
type Assignment struct {
	Splits   map[string]constants.Split
	Excluded []Exclusion
	Mode     Mode
	Seed     string
	// Threshold is the eligible-set size at which hash mode takes over.
	Threshold int
}

// Error is a fatal partitioning failure.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "partition: " + e.Reason }

func (e *Error) Unwrap() error { return common.ErrPartition }

// Partition assigns whole documents to train/val/test.
func Partition(inputs []Input, opts Options) (Assignment, error) {
	r := opts.Ratios
	if err := common.ValidateRatios(r.Train, r.Val, r.Test); err != nil {
		return Assignment{}, &Error{Reason: err.Error()}
	}

	out := Assignment{Splits: map[string]constants.Split{}, Seed: opts.Seed, Mode: ModeHash, Threshold: opts.SmallSetThreshold}

	seen := make(map[string]bool, len(inputs))
	var eligible []keyed
	for _, in := range inputs {
		switch {
		case in.DocumentID == "":
			out.Excluded = append(out.Excluded, Exclusion{Annotations: in.Annotations, Reason: "empty document id"})
			continue
		case seen[in.DocumentID]:
			continue
		}
		seen[in.DocumentID] = true
		if in.Annotations < opts.MinAnnotations {
			out.Excluded = append(out.Excluded, Exclusion{
				DocumentID:  in.DocumentID,
				Annotations: in.Annotations,
				Reason:      fmt.Sprintf("%d annotations, minimum is %d", in.Annotations, opts.MinAnnotations),
			})
			continue
		}
		eligible = append(eligible, keyed{id: in.DocumentID, h: Hash(opts.Seed, in.DocumentID)})
	}
	sort.Slice(out.Excluded, func(i, j int) bool { return out.Excluded[i].DocumentID < out.Excluded[j].DocumentID })

	if len(eligible) == 0 {
		return out, &Error{Reason: "no eligible documents"}
	}

	if opts.SmallSetThreshold > 0 && len(eligible) < opts.SmallSetThreshold {
		out.Mode = ModeQuota
		assignQuota(eligible, r, out.Splits)
		return out, nil
	}

	for _, k := range eligible {
		out.Splits[k.id] = bucket(unit(k.h), r)
	}
	return out, nil
}

type keyed struct {
	id string
	h  uint64
}

// Hash is the stable 64-bit key of a document under seed.
func Hash(seed, documentID string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(seed)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(documentID)
	return d.Sum64()
}

// unit maps a hash onto [0,1).
func unit(h uint64) float64 {
	return float64(h>>11) / float64(uint64(1)<<53)
}

func bucket(u float64, r Ratios) constants.Split {
	switch {
	case u < r.Train:
		return constants.SplitTrain
	case u < r.Train+r.Val:
		return constants.SplitVal
	default:
		return constants.SplitTest
	}
}

func assignQuota(docs []keyed, r Ratios, dst map[string]constants.Split) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].h != docs[j].h {
			return docs[i].h < docs[j].h
		}
		return docs[i].id < docs[j].id
	})

	n := len(docs)
	nVal := floorCount(n, r.Val)
	nTest := floorCount(n, r.Test)

	nonZero := 0
	for _, v := range []float64{r.Train, r.Val, r.Test} {
		if v > 0 {
			nonZero++
		}
	}
	if n >= nonZero {
		if r.Val > 0 && nVal == 0 {
			nVal = 1
		}
		if r.Test > 0 && nTest == 0 {
			nTest = 1
		}
	}
	// The rounding remainder goes to train.
	nTrain := n - nVal - nTest

	for i, d := range docs {
		switch {
		case i < nTrain:
			dst[d.id] = constants.SplitTrain
		case i < nTrain+nVal:
			dst[d.id] = constants.SplitVal
		default:
			dst[d.id] = constants.SplitTest
		}
	}
}

func floorCount(n int, ratio float64) int {
	return int(math.Floor(float64(n)*ratio + 1e-9))
}

// Documents returns the sorted IDs assigned to split.
func (a Assignment) Documents(split constants.Split) []string {
	var ids []string
	for id, s := range a.Splits {
		if s == split {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of documents per split.
func (a Assignment) Counts() map[constants.Split]int {
	out := map[constants.Split]int{}
	for _, s := range a.Splits {
		out[s]++
	}
	return out
}

// StabilityWarning explains, for quota mode, that assignments are not stable
// as documents are added. It is empty in hash mode.
func (a Assignment) StabilityWarning() string {
	if a.Mode != ModeQuota {
		return ""
	}
	return fmt.Sprintf("%d documents is below the hash threshold of %d: adding documents can move existing ones "+
		"between splits, and reaching %d reassigns the whole set", len(a.Splits), a.Threshold, a.Threshold)
}

// SplitOf returns the split a document was assigned to.
func (a Assignment) SplitOf(documentID string) (constants.Split, bool) {
	s, ok := a.Splits[documentID]
	return s, ok
}
