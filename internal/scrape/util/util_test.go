package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Senior Dev", CleanText("  Senior \n\t Dev "))
	assert.Equal(t, "senior dev", NormalizeKey("  SENIOR   Dev"))
}

func TestNormalizeLocation_DedupesParts(t *testing.T) {
	assert.Equal(t, "Cape Town, Western Cape", NormalizeLocation("Location: Cape Town, cape town , Western Cape"))
	assert.Equal(t, "", NormalizeLocation("   "))
}

func TestCanonicalizeURL(t *testing.T) {
	a := CanonicalizeURL("HTTPS://WWW.Pnet.co.za/jobs/1?utm_source=x&b=2&a=1#frag")
	b := CanonicalizeURL("https://www.pnet.co.za/jobs/1?a=1&b=2")
	assert.Equal(t, b, a)
	assert.Equal(t, "", CanonicalizeURL("  "))
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://www.pnet.co.za/jobs/42", AbsoluteURL("https://www.pnet.co.za/jobs/search", "/jobs/42"))
	assert.Equal(t, "https://x.io/a", AbsoluteURL("https://www.pnet.co.za", "https://x.io/a"))
	assert.Equal(t, "", AbsoluteURL("https://www.pnet.co.za", ""))
}

func TestHashString_Deterministic(t *testing.T) {
	assert.Equal(t, HashString("u1"), HashString("u1"))
	assert.NotEqual(t, HashString("u1"), HashString("u2"))
	assert.Len(t, HashString("x"), 64)
	assert.Equal(t, Hash32("abc"), Hash32("abc"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
}

func TestSelectors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
<div class="card"><h2><a href="/j/1"> Dev </a></h2><span class="company-name">X</span></div>`))
	require.NoError(t, err)

	cards := FindAny(doc, "article.job", "div.card")
	require.Equal(t, 1, cards.Length())
	assert.Equal(t, "Dev", FirstText(cards, ".title a", "h2 a"))
	assert.Equal(t, "X", FirstText(cards, ".company", ".company-name"))
	assert.Equal(t, "/j/1", FirstAttr(cards, "href", "a.job-title", "h2 a"))
	assert.Equal(t, 0, FindAny(doc, "li.nothing").Length())
}

func TestHostLimiter_NilNeverWaits(t *testing.T) {
	var hl *HostLimiter
	assert.NoError(t, hl.WaitURL(context.Background(), "https://a.example"))
}

func TestHostLimiter_RespectsContext(t *testing.T) {
	hl := NewHostLimiter(0.001, 1)
	ctx := context.Background()
	require.NoError(t, hl.WaitURL(ctx, "https://a.example/x"))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, hl.WaitURL(cctx, "https://a.example/y"))

	// a different host has its own bucket
	assert.NoError(t, hl.WaitURL(ctx, "https://b.example/y"))
}
