package domain

import (
	"sort"
	"strconv"
	"strings"

	apperr "jobagg-engine/internal/errors"
	"jobagg-engine/internal/scrape/util"
)

type SourceID string

// SearchRequest is immutable once built by NewSearchRequest.
type SearchRequest struct {
	Query      string
	Location   string
	Sources    []SourceID
	PageBudget int
}

// Fingerprint is the canonical cache and concurrency key of a search.
type Fingerprint string

type Budget struct {
	Default int
	Max     int
}

// NewSearchRequest trims the free-text fields, lower-cases and dedupes the
// sources keeping first occurrence, and clamps the page budget. Source ids
// are case-insensitive: "PNet" and "pnet" name the same source, and the
// lower-case form is the one reported back in results.
func NewSearchRequest(query, location string, sources []string, pageBudget int, b Budget) (SearchRequest, error) {
	query = util.CleanText(query)
	location = util.CleanText(location)
	if query == "" || location == "" {
		return SearchRequest{}, apperr.InvalidInput("query and location are required", nil)
	}

	seen := map[SourceID]bool{}
	var ids []SourceID
	for _, s := range sources {
		id := SourceID(strings.ToLower(strings.TrimSpace(s)))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return SearchRequest{}, apperr.InvalidInput("at least one source is required", nil)
	}

	if b.Default <= 0 {
		b.Default = 1
	}
	if b.Max < b.Default {
		b.Max = b.Default
	}
	if pageBudget <= 0 {
		pageBudget = b.Default
	}
	if pageBudget > b.Max {
		pageBudget = b.Max
	}

	return SearchRequest{
		Query:      query,
		Location:   location,
		Sources:    ids,
		PageBudget: pageBudget,
	}, nil
}

// Fingerprint ignores source order and page budget.
func (r SearchRequest) Fingerprint() Fingerprint {
	return FingerprintOf(r.Query, r.Location, r.Sources)
}

func FingerprintOf(query, location string, sources []SourceID) Fingerprint {
	set := map[string]bool{}
	for _, s := range sources {
		k := strings.ToLower(strings.TrimSpace(string(s)))
		if k != "" {
			set[k] = true
		}
	}
	ids := make([]string, 0, len(set))
	for k := range set {
		ids = append(ids, k)
	}
	sort.Strings(ids)

	// each part is quoted so separators inside free text cannot collide
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}

	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strconv.Quote(util.NormalizeKey(query)))
	b.WriteString("|l=")
	b.WriteString(strconv.Quote(util.NormalizeKey(location)))
	b.WriteString("|s=")
	b.WriteString(strings.Join(quoted, ","))
	return Fingerprint(b.String())
}

func (f Fingerprint) String() string { return string(f) }
