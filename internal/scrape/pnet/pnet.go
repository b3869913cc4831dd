package pnet

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
	ID             domain.SourceID = "pnet"
	DefaultBaseURL                 = "https://www.pnet.co.za"
)

func Config(baseURL string) board.Config {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return board.Config{
		ID:      ID,
		Cost:    types.CostScrape,
		BaseURL: strings.TrimRight(baseURL, "/"),
		PageURL: pageURL,
		Selectors: board.Selectors{
			Cards: []string{
				`article.job-result, div.job-item, div[data-job-id]`,
				`div.listing, div[class*="listing"], div[class*="job-card"]`,
			},
			CardLinks:   `a[href*="/jobs/"]`,
			Title:       []string{"h2 a", "h3 a", "a.job-title", ".title a"},
			Company:     []string{".company", ".company-name", `span[itemprop="name"]`},
			Location:    []string{".location", ".job-location", `span[itemprop="addressLocality"]`},
			Salary:      []string{".salary", ".job-salary", ".salary-range"},
			Date:        []string{".date", ".posted-date", "time"},
			Description: []string{".description", ".job-description", ".snippet"},
			Link:        []string{"a.job-title", "h2 a", "h3 a", `a[href*="/job/"]`},
			JobType:     []string{".job-type", ".employment-type"},
		},
		BlockMarkers: board.DefaultBlockMarkers,
	}
}

func New(baseURL string, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) *board.Scraper {
	return board.New(Config(baseURL), hc, limiter, log)
}

func pageURL(base string, q types.Query, page int) string {
	v := url.Values{}
	v.Set("s", q.Query)
	v.Set("l", q.Location)
	v.Set("p", strconv.Itoa(page))
	return base + "/jobs/search-results.html?" + v.Encode()
}
