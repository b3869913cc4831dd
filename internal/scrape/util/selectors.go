package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the cleaned text of the first selector that matches
// something non-empty inside sel.
func FirstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if t := CleanText(sel.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// FirstAttr is FirstText for attributes.
func FirstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, s := range selectors {
		if v, ok := sel.Find(s).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// FindAny returns the matches of the first selector group that yields any
// nodes. Boards change markup often, so adapters list selectors from most to
// least specific.
func FindAny(doc *goquery.Document, groups ...string) *goquery.Selection {
	for _, g := range groups {
		if s := doc.Find(g); s.Length() > 0 {
			return s
		}
	}
	return doc.Find("__none__")
}
