package extract

import "strings"

// DefaultKeywords signal utility infrastructure content.
var DefaultKeywords = []string{
	"pipe", "manhole", "invert", "rim elevation", "storm", "sewer",
	"drainage", "catch basin", "structure table", "pipe table",
	"sanitary", "water main", "force main", "swppp",
}

// Relevance decides whether a document is worth sending to the service.
type Relevance struct {
	Keywords  []string
	Threshold int
}

func NewRelevance(threshold int) Relevance {
	if threshold < 1 {
		threshold = 2
	}
	return Relevance{Keywords: DefaultKeywords, Threshold: threshold}
}

// Classify returns the distinct keywords found in text and whether they reach the threshold.
func (r Relevance) Classify(text string) ([]string, bool) {
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits, len(hits) >= r.Threshold
}
