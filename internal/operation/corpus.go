package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Corpus accumulates records for one discovery run, unique by (path, selector).
type Corpus struct {
	mu      sync.RWMutex
	records []Record
	keys    map[string]struct{}
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{keys: make(map[string]struct{})}
}

// Add appends r unless a record with the same path and selector exists.
func (c *Corpus) Add(r Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := r.Key()
	if _, dup := c.keys[k]; dup {
		return false
	}
	c.keys[k] = struct{}{}
	c.records = append(c.records, r)
	return true
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Records returns a copy of all records in insertion order.
func (c *Corpus) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Record(nil), c.records...)
}

// Filter returns records of one crud kind.
func (c *Corpus) Filter(kind CrudKind) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Record
	for _, r := range c.records {
		if r.Crud == kind {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns the number of records per crud kind.
func (c *Corpus) Counts() map[CrudKind]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[CrudKind]int)
	for _, r := range c.records {
		out[r.Crud]++
	}
	return out
}

// Document is the durable interchange between discovery and serving.
type Document struct {
	RunID       string    `json:"run_id"`
	RootURL     string    `json:"root_url"`
	GeneratedAt time.Time `json:"generated_at"`
	Records     []Record  `json:"records"`
}

// NewDocument snapshots the corpus.
func NewDocument(runID, rootURL string, c *Corpus) Document {
	recs := c.Records()
	if recs == nil {
		recs = []Record{}
	}
	return Document{
		RunID:       runID,
		RootURL:     rootURL,
		GeneratedAt: time.Now().UTC(),
		Records:     recs,
	}
}

// Corpus rebuilds a corpus from the document.
func (d Document) Corpus() *Corpus {
	c := NewCorpus()
	for _, r := range d.Records {
		c.Add(r)
	}
	return c
}

// Validate checks every record and the uniqueness invariant.
func (d Document) Validate() error {
	seen := make(map[string]int, len(d.Records))
	for i, r := range d.Records {
		if !r.Crud.Valid() {
			return fmt.Errorf("record %d: invalid crud_kind %q", i, r.Crud)
		}
		if !r.Entity.Valid() {
			return fmt.Errorf("record %d: invalid entity_kind %q", i, r.Entity)
		}
		if r.Selector == "" && !r.IsFallback() {
			return fmt.Errorf("record %d: selector is required", i)
		}
		if j, dup := seen[r.Key()]; dup {
			return fmt.Errorf("record %d duplicates record %d (path %s, selector %q)", i, j, r.Path, r.Selector)
		}
		seen[r.Key()] = i
	}
	return nil
}

// WriteFile writes the document atomically: a temp file in the same
// directory is renamed over path.
func WriteFile(path string, d Document) error {
	if path == "" {
		return errors.New("corpus path is required")
	}
	if d.Records == nil {
		d.Records = []Record{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".corpus-*.json")
	if err != nil {
		return fmt.Errorf("create temp corpus: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit corpus: %w", err)
	}
	return nil
}

// LoadFile reads and validates a corpus document.
func LoadFile(path string) (Document, error) {
	var d Document
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read corpus: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	if d.Records == nil {
		return d, fmt.Errorf("parse corpus %s: missing records", path)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("invalid corpus %s: %w", path, err)
	}
	return d, nil
}
