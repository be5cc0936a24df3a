package documents

import (
	"sync"

	"docket/internal/textutil"
)

// DefaultDuplicateThreshold is the cosine similarity above which two
// documents' text is treated as the same underlying record.
const DefaultDuplicateThreshold = 0.92

// Deduper detects near-duplicate documents by text similarity. Sources
// routinely republish the same filing under multiple URLs; fingerprint
// comparison catches those even when titles differ.
type Deduper struct {
	threshold float64

	mu     sync.Mutex
	known  map[string]*textutil.Fingerprint
	corpus *textutil.Corpus
}

// NewDeduper builds a deduper. A threshold <= 0 uses the default.
func NewDeduper(threshold float64) *Deduper {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	return &Deduper{
		threshold: threshold,
		known:     make(map[string]*textutil.Fingerprint),
		corpus:    textutil.NewCorpus(),
	}
}

// Observe registers a document's extracted text and returns the ID of a
// previously observed near-duplicate, or "" when the text is novel. The
// text is registered either way so later documents compare against it.
func (d *Deduper) Observe(id, text string) string {
	fp := textutil.NewFingerprint(text)
	if fp == nil {
		return ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var idf map[string]float64
	if len(d.known) >= idfMinCorpus {
		idf = d.corpus.IDF()
	}
	match := ""
	best := d.threshold
	for knownID, knownFP := range d.known {
		if knownID == id {
			continue
		}
		score := textutil.CosineSimilarity(weigh(fp, idf), weigh(knownFP, idf))
		if score >= best {
			best = score
			match = knownID
		}
	}

	d.known[id] = fp
	d.corpus.Add(fp)
	return match
}

// idfMinCorpus is the observed-document count below which IDF weighting is
// skipped: frequencies from a handful of documents zero out shared terms
// and distort the comparison.
const idfMinCorpus = 10

func weigh(fp *textutil.Fingerprint, idf map[string]float64) *textutil.Fingerprint {
	if len(idf) == 0 {
		return fp
	}
	weighted := fp.WithIDF(idf)
	if weighted == nil {
		return fp
	}
	return weighted
}

// Size returns how many documents the deduper has observed.
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.known)
}
