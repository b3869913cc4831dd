// Package board scrapes server-rendered job-board search pages. Each board
// supplies its URL scheme and selector lists; extraction, paging and error
// classification are shared.
package board

import (
	"context"
	"net/http"
	"strings"
	"time"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Selectors are comma-joined CSS groups tried in order; the first that
// yields something wins.
type Selectors struct {
	Cards       []string
	CardLinks   string // last resort: parents of links matching this
	Title       []string
	Company     []string
	Location    []string
	Salary      []string
	Date        []string
	Description []string
	Link        []string
	JobType     []string
	Reference   []string
	Industry    []string
}

type Config struct {
	ID       domain.SourceID
	Cost     types.Cost
	BaseURL  string
	MaxPages int
	PageURL  func(base string, q types.Query, page int) string

	Selectors Selectors

	// Pages with no cards that match one of these are reported as blocked.
	BlockSelectors []string
	BlockMarkers   []string
}

type Scraper struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	log     *zap.Logger
}

func New(cfg Config, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) *Scraper {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Cost == "" {
		cfg.Cost = types.CostScrape
	}
	return &Scraper{
		cfg:     cfg,
		hc:      hc,
		limiter: limiter,
		log:     log.Named(string(cfg.ID)),
	}
}

func (s *Scraper) ID() domain.SourceID { return s.cfg.ID }
func (s *Scraper) Cost() types.Cost    { return s.cfg.Cost }

func (s *Scraper) Fetch(ctx context.Context, q types.Query) domain.SourceResult {
	started := time.Now()
	pages := q.Pages
	if pages <= 0 {
		pages = 1
	}
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		pages = s.cfg.MaxPages
	}

	var out []domain.Posting
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return types.Result(s.cfg.ID, out, err, started)
		}

		batch, err := s.fetchPage(ctx, q, page)
		if err != nil {
			// Later pages failing for reasons other than cancellation end
			// paging; what we have is still a good answer.
			if page > 1 && len(out) > 0 && ctx.Err() == nil {
				s.log.Warn("page failed, keeping earlier pages",
					zap.Int("page", page), zap.Error(err))
				break
			}
			return types.Result(s.cfg.ID, out, err, started)
		}
		s.log.Debug("page scraped", zap.Int("page", page), zap.Int("postings", len(batch)))
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
	}
	return types.Result(s.cfg.ID, out, nil, started)
}

func (s *Scraper) fetchPage(ctx context.Context, q types.Query, page int) ([]domain.Posting, error) {
	pageURL := s.cfg.PageURL(s.cfg.BaseURL, q, page)

	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, pageURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-ZA,en;q=0.9")

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := types.CheckStatus(res); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, &types.ParseError{Err: err}
	}
	return s.Parse(doc)
}

// Parse extracts postings from one search-results document.
func (s *Scraper) Parse(doc *goquery.Document) ([]domain.Posting, error) {
	cards := s.cards(doc)
	if len(cards) == 0 {
		if reason := s.blocked(doc); reason != "" {
			return nil, &types.BlockedError{Reason: reason}
		}
		return nil, nil
	}

	sel := s.cfg.Selectors
	var out []domain.Posting
	for _, card := range cards {
		title := util.FirstText(card, sel.Title...)
		company := util.FirstText(card, sel.Company...)
		if title == "" || company == "" {
			continue
		}

		posted := util.FirstText(card, sel.Date...)
		if posted == "" {
			posted = util.FirstAttr(card, "datetime", sel.Date...)
		}

		p := domain.Posting{
			Title:       title,
			Company:     company,
			Location:    util.FirstText(card, sel.Location...),
			SalaryText:  orDefault(util.FirstText(card, sel.Salary...), "Not specified"),
			PostedAt:    orDefault(posted, "Recently"),
			Description: util.FirstText(card, sel.Description...),
			SourceURL:   util.AbsoluteURL(s.cfg.BaseURL, util.FirstAttr(card, "href", sel.Link...)),
			SourceID:    s.cfg.ID,
			JobType:     orDefault(util.FirstText(card, sel.JobType...), "Full-time"),
			Reference:   util.FirstText(card, sel.Reference...),
			Industry:    util.FirstText(card, sel.Industry...),
		}
		out = append(out, p.Normalize())
	}
	return out, nil
}

func (s *Scraper) cards(doc *goquery.Document) []*goquery.Selection {
	var out []*goquery.Selection
	util.FindAny(doc, s.cfg.Selectors.Cards...).Each(func(_ int, c *goquery.Selection) {
		out = append(out, c)
	})
	if len(out) > 0 || s.cfg.Selectors.CardLinks == "" {
		return out
	}

	seen := map[any]bool{}
	doc.Find(s.cfg.Selectors.CardLinks).Each(func(_ int, a *goquery.Selection) {
		parent := a.Closest("div, article, section")
		if parent.Length() == 0 {
			return
		}
		n := parent.Get(0)
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, parent)
	})
	return out
}

func (s *Scraper) blocked(doc *goquery.Document) string {
	for _, bs := range s.cfg.BlockSelectors {
		if doc.Find(bs).Length() > 0 {
			return "consent wall"
		}
	}
	text := strings.ToLower(doc.Find("body").Text())
	for _, m := range s.cfg.BlockMarkers {
		if strings.Contains(text, m) {
			return m
		}
	}
	return ""
}

// DefaultBlockMarkers match common anti-bot interstitials.
var DefaultBlockMarkers = []string{
	"captcha",
	"are you a robot",
	"access denied",
	"please enable javascript and cookies",
	"checking your browser",
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
