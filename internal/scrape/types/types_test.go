package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"jobagg-engine/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	var syntaxErr error = json.Unmarshal([]byte("{"), &struct{}{})

	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.ErrKindNone},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), domain.ErrKindTimeout},
		{"cancel", context.Canceled, domain.ErrKindCancelled},
		{"forbidden", &StatusError{Code: 403}, domain.ErrKindBlocked},
		{"too many", &StatusError{Code: 429}, domain.ErrKindBlocked},
		{"server error", &StatusError{Code: 502}, domain.ErrKindHTTPStatus},
		{"cookie wall", &BlockedError{Reason: "consent"}, domain.ErrKindBlocked},
		{"parse", &ParseError{Err: errors.New("bad html")}, domain.ErrKindParse},
		{"json", syntaxErr, domain.ErrKindParse},
		{"missing key", &NotConfiguredError{What: "adzuna app_key"}, domain.ErrKindNotConfigured},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, domain.ErrKindNetwork},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Classify(c.err))
		})
	}
}

func TestResult_KeepsPartialPostings(t *testing.T) {
	started := time.Now()
	r := Result("pnet", []domain.Posting{{Title: "a"}}, context.DeadlineExceeded, started)

	assert.False(t, r.Success)
	assert.True(t, r.Partial)
	assert.Equal(t, domain.ErrKindTimeout, r.ErrorKind)

	ok := Result("pnet", nil, nil, started)
	assert.True(t, ok.Success)
}

func TestCostDefaultTimeout(t *testing.T) {
	assert.Less(t, CostAPI.DefaultTimeout(), CostScrape.DefaultTimeout())
	assert.Equal(t, 180*time.Second, CostBrowser.DefaultTimeout())
}
