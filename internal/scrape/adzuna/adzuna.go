package adzuna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	ID             domain.SourceID = "adzuna"
	DefaultBaseURL                 = "https://api.adzuna.com"
	resultsPerPage                 = 20
	maxPages                       = 3
	descriptionMax                 = 500
)

type Config struct {
	BaseURL string
	Country string
	AppID   string
	// AppKey is resolved per fetch so a key saved at runtime is picked up.
	AppKey func() (string, error)
}

type Client struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	log     *zap.Logger
}

func New(cfg Config, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Country == "" {
		cfg.Country = "za"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, hc: hc, limiter: limiter, log: log.Named("adzuna")}
}

func (c *Client) ID() domain.SourceID { return ID }
func (c *Client) Cost() types.Cost    { return types.CostAPI }

type searchResponse struct {
	Count   int   `json:"count"`
	Results []job `json:"results"`
}

type job struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	Created      string  `json:"created"`
	Description  string  `json:"description"`
	RedirectURL  string  `json:"redirect_url"`
	ContractType string  `json:"contract_type"`
	Category     struct {
		Label string `json:"label"`
	} `json:"category"`
}

func (c *Client) Fetch(ctx context.Context, q types.Query) domain.SourceResult {
	started := time.Now()

	key, err := c.appKey()
	if err != nil {
		return types.Result(ID, nil, err, started)
	}

	pages := q.Pages
	if pages <= 0 {
		pages = 1
	}
	if pages > maxPages {
		pages = maxPages
	}

	var out []domain.Posting
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return types.Result(ID, out, err, started)
		}
		batch, err := c.fetchPage(ctx, key, q, page)
		if err != nil {
			if page > 1 && len(out) > 0 && ctx.Err() == nil {
				c.log.Warn("page failed, keeping earlier pages", zap.Int("page", page), zap.Error(err))
				break
			}
			return types.Result(ID, out, err, started)
		}
		out = append(out, batch...)
		if len(batch) < resultsPerPage {
			break
		}
	}
	return types.Result(ID, out, nil, started)
}

func (c *Client) appKey() (string, error) {
	if c.cfg.AppID == "" || c.cfg.AppKey == nil {
		return "", &types.NotConfiguredError{What: "adzuna app_id/app_key"}
	}
	key, err := c.cfg.AppKey()
	if err != nil || key == "" {
		return "", &types.NotConfiguredError{What: "adzuna app_key"}
	}
	return key, nil
}

func (c *Client) fetchPage(ctx context.Context, key string, q types.Query, page int) ([]domain.Posting, error) {
	v := url.Values{}
	v.Set("app_id", c.cfg.AppID)
	v.Set("app_key", key)
	v.Set("results_per_page", strconv.Itoa(resultsPerPage))
	v.Set("what", q.Query)
	v.Set("where", q.Location)
	v.Set("content-type", "application/json")
	apiURL := fmt.Sprintf("%s/v1/api/jobs/%s/search/%d?%s", c.cfg.BaseURL, c.cfg.Country, page, v.Encode())

	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, apiURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jobagg/1.0")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer res.Body.Close()
	if err := types.CheckStatus(res); err != nil {
		return nil, c.redact(err)
	}

	var body searchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &types.ParseError{Err: err}
	}

	out := make([]domain.Posting, 0, len(body.Results))
	for _, j := range body.Results {
		if strings.TrimSpace(j.Title) == "" {
			continue
		}
		p := domain.Posting{
			Title:       j.Title,
			Company:     orDefault(j.Company.DisplayName, "Company not specified"),
			Location:    orDefault(j.Location.DisplayName, q.Location),
			SalaryText:  FormatSalary(j.SalaryMin, j.SalaryMax),
			PostedAt:    formatCreated(j.Created),
			Description: orDefault(util.Truncate(stripHTML(j.Description), descriptionMax), "No description available"),
			SourceURL:   j.RedirectURL,
			SourceID:    ID,
			JobType:     orDefault(j.ContractType, "Full-time"),
			Industry:    orDefault(j.Category.Label, "General"),
			Reference:   j.ID,
		}
		out = append(out, p.Normalize())
	}
	return out, nil
}

// redact keeps app_key out of error strings, which end up in logs and
// response diagnostics.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = c.cfg.BaseURL
	}
	var se *types.StatusError
	if errors.As(err, &se) {
		se.URL = c.cfg.BaseURL
	}
	return err
}

// FormatSalary renders Adzuna's annual bounds in rand.
func FormatSalary(min, max float64) string {
	switch {
	case min > 0 && max > 0:
		return fmt.Sprintf("R%s - R%s per year", thousands(min), thousands(max))
	case min > 0:
		return fmt.Sprintf("From R%s per year", thousands(min))
	default:
		return "Salary not specified"
	}
}

func thousands(v float64) string {
	s := strconv.FormatInt(int64(math.Round(v)), 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatCreated(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return orDefault(s, "Recently")
	}
	return t.Format("2006/01/02")
}

func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return util.CleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return util.CleanText(s)
	}
	return util.CleanText(doc.Text())
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
