// Package dedupe collapses postings that describe the same job.
package dedupe

import (
	"jobagg-engine/internal/domain"
)

type Stats struct {
	Total   int `json:"total"`
	Unique  int `json:"unique"`
	Removed int `json:"removed"`
}

// Dedupe keeps the first occurrence of each job, in input order. Two
// postings are the same job when their derived canonical ids match, or
// when either lacks a URL and their normalized title, company and
// location match.
// Only kept postings are remembered, so Dedupe(Dedupe(x)) == Dedupe(x).
func Dedupe(in []domain.Posting) []domain.Posting {
	out, _ := WithStats(in)
	return out
}

func WithStats(in []domain.Posting) ([]domain.Posting, Stats) {
	ids := make(map[string]bool, len(in))
	triples := make(map[string]bool, len(in)) // every kept posting
	urlless := make(map[string]bool, len(in)) // kept postings without a URL
	out := make([]domain.Posting, 0, len(in))

	for _, p := range in {
		// ids stamped by a source are never trusted
		id := domain.CanonicalID(p)
		p.CanonicalID = id
		triple := domain.TripleKey(p)
		hasURL := p.SourceURL != ""

		if ids[id] {
			continue
		}
		if !hasURL && triples[triple] {
			continue
		}
		if hasURL && urlless[triple] {
			continue
		}

		ids[id] = true
		triples[triple] = true
		if !hasURL {
			urlless[triple] = true
		}
		out = append(out, p)
	}

	return out, Stats{Total: len(in), Unique: len(out), Removed: len(in) - len(out)}
}
