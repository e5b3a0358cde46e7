package ingest

// Catalog indexes documents by ID and by file stem. Annotation files produced
// upstream may be keyed by either.
type Catalog struct {
	docs   []Document
	byID   map[string]Document
	byStem map[string]Document
}

func NewCatalog(docs []Document) *Catalog {
	c := &Catalog{
		docs:   docs,
		byID:   make(map[string]Document, len(docs)),
		byStem: make(map[string]Document, len(docs)),
	}
	for _, d := range docs {
		c.byID[d.ID] = d
		if _, taken := c.byStem[d.Stem()]; !taken {
			c.byStem[d.Stem()] = d
		}
	}
	return c
}

// Resolve finds a document by ID, falling back to file stem.
func (c *Catalog) Resolve(key string) (Document, bool) {
	if d, ok := c.byID[key]; ok {
		return d, true
	}
	d, ok := c.byStem[key]
	return d, ok
}

// Documents returns the catalogued documents in discovery order.
func (c *Catalog) Documents() []Document {
	return c.docs
}

// Len is the number of catalogued documents.
func (c *Catalog) Len() int {
	return len(c.docs)
}
