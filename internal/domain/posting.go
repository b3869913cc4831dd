package domain

import (
	"jobagg-engine/internal/scrape/util"
)

// Posting is a normalized job record. CanonicalID is always derived, never
// taken from the source.
type Posting struct {
	CanonicalID string   `json:"canonicalId"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	SalaryText  string   `json:"salary"`
	PostedAt    string   `json:"postedAt"` // best-effort, often "3 days ago"
	Description string   `json:"description"`
	SourceURL   string   `json:"url"`
	SourceID    SourceID `json:"source"`

	JobType   string `json:"jobType,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// CanonicalID hashes the canonical URL when there is one, else the
// normalized title/company/location triple.
func CanonicalID(p Posting) string {
	if u := util.CanonicalizeURL(p.SourceURL); u != "" {
		return "u:" + util.HashString(u)
	}
	return "t:" + util.HashString(TripleKey(p))
}

// TripleKey is the URL-less identity of a posting.
func TripleKey(p Posting) string {
	return util.NormalizeKey(p.Title) + "|" + util.NormalizeKey(p.Company) + "|" + util.NormalizeKey(p.Location)
}

// Normalize returns a cleaned copy with CanonicalID set.
func (p Posting) Normalize() Posting {
	p.Title = util.CleanText(p.Title)
	p.Company = util.CleanText(p.Company)
	p.Location = util.NormalizeLocation(p.Location)
	p.SalaryText = util.CleanText(p.SalaryText)
	p.PostedAt = util.CleanText(p.PostedAt)
	p.Description = util.CleanText(p.Description)
	p.SourceURL = util.CanonicalizeURL(p.SourceURL)
	p.JobType = util.CleanText(p.JobType)
	p.Industry = util.CleanText(p.Industry)
	p.Reference = util.CleanText(p.Reference)
	p.CanonicalID = CanonicalID(p)
	return p
}
