package careerjunction

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/board"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/scrape/util"

	"go.uber.org/zap"
)

const (
	ID             domain.SourceID = "careerjunction"
	DefaultBaseURL                 = "https://www.careerjunction.co.za"
	pageSize                       = 20
	maxPages                       = 10
)

func Config(baseURL string) board.Config {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return board.Config{
		ID:       ID,
		Cost:     types.CostScrape,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		MaxPages: maxPages,
		PageURL:  pageURL,
		Selectors: board.Selectors{
			Cards:       []string{`article.job, div.job-item, div[data-job-id], div.result-item, li.job-result`},
			Title:       []string{"h2 a", "h3 a", "a.job-title", ".job-title a", "a[data-job-title]"},
			Company:     []string{".company", ".company-name", "span.employer", "div.employer-name"},
			Location:    []string{".location", ".job-location", "span.location", "div.job-location"},
			Salary:      []string{".salary", ".remuneration", "span.salary", "div.salary-range"},
			Date:        []string{".date", ".posted-date", "time", "span.date-posted"},
			Description: []string{".description", ".job-description", ".snippet", "div.job-snippet"},
			Link:        []string{"a.job-title", "h2 a", "h3 a", `a[href*="/jobs/"]`},
			JobType:     []string{".job-type", ".employment-type", "span.job-type"},
			Reference:   []string{".reference", ".job-reference", "span[data-reference]"},
			Industry:    []string{".industry", "span.industry-type"},
		},
		// The consent banner is rendered client-side; without a browser the
		// listing markup never appears behind it.
		BlockSelectors: []string{"#cookie-consent-accept-all", `button[data-testid="cookie-banner-accept-all"]`},
		BlockMarkers:   board.DefaultBlockMarkers,
	}
}

func New(baseURL string, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) *board.Scraper {
	return board.New(Config(baseURL), hc, limiter, log)
}

func pageURL(base string, q types.Query, page int) string {
	v := url.Values{}
	v.Set("keywords", q.Query)
	v.Set("location", q.Location)
	v.Set("pagesize", strconv.Itoa(pageSize))
	v.Set("page", strconv.Itoa(page))
	return base + "/jobs?" + v.Encode()
}
