package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

var knownSources = map[string]bool{
	"pnet":           true,
	"careerjunction": true,
	"adzuna":         true,
}

// NormalizeAndValidate returns a normalized copy and the problems found.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))
	switch out.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		res.addErr("log.level %q is not one of debug, info, warn, error", out.Log.Level)
	}

	// sources: trim, lower-case, drop duplicate ids keeping the first
	seen := map[string]bool{}
	var sources []Source
	for _, s := range out.Sources {
		s.ID = strings.ToLower(strings.TrimSpace(s.ID))
		if s.ID == "" {
			res.addErr("sources: entry with empty id")
			continue
		}
		if seen[s.ID] {
			res.addWarn("sources: duplicate id %q ignored", s.ID)
			continue
		}
		seen[s.ID] = true
		if !knownSources[s.ID] {
			res.addErr("sources: unknown source %q", s.ID)
		}
		if s.Timeout < 0 {
			res.addErr("sources[%s].timeout must be >= 0", s.ID)
		}
		if s.RPS < 0 || s.Burst < 0 {
			res.addErr("sources[%s]: rps and burst must be >= 0", s.ID)
		}
		if s.ID == "adzuna" && s.Enabled && s.AppID == "" {
			res.addWarn("sources[adzuna] is enabled without app_id; it will report not_configured")
		}
		sources = append(sources, s)
	}
	out.Sources = sources

	enabled := 0
	for _, s := range out.Sources {
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		res.addWarn("no sources enabled; every search will go to the fallback chain")
	}

	// search
	if out.Search.DefaultPageBudget <= 0 {
		res.addErr("search.default_page_budget must be > 0")
	}
	if out.Search.MaxPageBudget < out.Search.DefaultPageBudget {
		res.addErr("search.max_page_budget must be >= default_page_budget")
	}
	if out.Search.GlobalDeadline <= 0 {
		res.addErr("search.global_deadline must be > 0")
	}
	if out.Search.CancelGrace < 0 {
		res.addErr("search.cancel_grace must be >= 0")
	}
	if out.Search.MaxConcurrentPerKey <= 0 {
		res.addErr("search.max_concurrent_per_key must be > 0")
	}
	for _, s := range out.Sources {
		if s.Timeout > out.Search.GlobalDeadline && out.Search.GlobalDeadline > 0 {
			res.addWarn("sources[%s].timeout %s exceeds search.global_deadline %s", s.ID, s.Timeout, out.Search.GlobalDeadline)
		}
	}

	// cache
	out.Cache.Backend = strings.ToLower(strings.TrimSpace(out.Cache.Backend))
	switch out.Cache.Backend {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(out.Cache.Redis.Addr) == "" {
			res.addErr("cache.redis.addr is required when cache.backend=redis")
		}
	default:
		res.addErr("cache.backend %q is not one of memory, redis, sqlite", out.Cache.Backend)
	}
	if out.Cache.TTL <= 0 {
		res.addErr("cache.ttl must be > 0")
	} else if out.Cache.TTL < time.Minute {
		res.addWarn("cache.ttl is very low (%s); most searches will hit the boards", out.Cache.TTL)
	}
	if out.Cache.MaxEntries < 0 {
		res.addErr("cache.max_entries must be >= 0")
	}

	// breaker
	if out.Breaker.Enabled {
		if out.Breaker.FailureThreshold <= 0 {
			res.addErr("breaker.failure_threshold must be > 0")
		}
		if out.Breaker.SuccessThreshold < 0 || out.Breaker.HalfOpenMaxRequests < 0 {
			res.addErr("breaker.success_threshold and breaker.half_open_max_requests must be >= 0")
		}
		if out.Breaker.ResetTimeout <= 0 {
			res.addErr("breaker.reset_timeout must be > 0")
		}
	}

	// fallback
	out.Fallback.Secondary = strings.ToLower(strings.TrimSpace(out.Fallback.Secondary))
	if out.Fallback.Secondary != "" && !knownSources[out.Fallback.Secondary] {
		res.addErr("fallback.secondary: unknown source %q", out.Fallback.Secondary)
	}
	if out.Fallback.Synthetic.Enabled && out.Fallback.Synthetic.Count <= 0 {
		res.addErr("fallback.synthetic.count must be > 0 when synthetic is enabled")
	}
	if !out.Fallback.Synthetic.Enabled {
		res.addWarn("fallback.synthetic is disabled; searches can fail with FALLBACK_EXHAUSTED")
	}

	if out.RateLimit.SearchPerMinute < 0 {
		res.addErr("rate_limit.search_per_minute must be >= 0")
	}

	// alerts
	out.Alerts = append([]Alert(nil), cfg.Alerts...)
	names := map[string]bool{}
	for i, a := range out.Alerts {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			res.addErr("alerts[%d].name is required", i)
		} else if names[a.Name] {
			res.addErr("alerts[%d]: duplicate name %q", i, a.Name)
		}
		names[a.Name] = true
		if strings.TrimSpace(a.Query) == "" || strings.TrimSpace(a.Location) == "" {
			res.addErr("alerts[%d]: query and location are required", i)
		}
		if a.Every <= 0 {
			res.addErr("alerts[%d].every must be > 0", i)
		} else if a.Every < out.Cache.TTL {
			res.addWarn("alerts[%d].every (%s) is shorter than cache.ttl; runs will mostly hit the cache", i, a.Every)
		}
		out.Alerts[i] = a
	}

	return out, res
}
