// Package source fetches intensity intervals and the fuel-factor catalog
// from the Carbon Intensity API.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/engine/step/retry"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const moduleName = "source"

// TimeLayout is the minute-precision ISO-8601 form the API expects in paths.
const TimeLayout = "2006-01-02T15:04Z"

// Client is a Carbon Intensity API client. Every request is bounded by the
// configured timeout and retried according to the retry policy.
type Client struct {
	http   *resty.Client
	policy retry.RetryPolicy
}

// NewClient returns a Client for cfg.BaseURL.
func NewClient(cfg *config.SourceConfig, policy retry.RetryPolicy) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{http: client, policy: policy}
}

// FetchIntensity returns the intervals between from and to, flattened.
func (c *Client) FetchIntensity(ctx context.Context, from, to time.Time) (*frame.Frame, error) {
	req := func() *resty.Request {
		return c.http.R().SetPathParams(map[string]string{
			"from": from.UTC().Format(TimeLayout),
			"to":   to.UTC().Format(TimeLayout),
		})
	}
	return c.fetch(ctx, "intensity", "/intensity/{from}/{to}", req)
}

// FetchFactors returns the fuel-factor catalog, flattened.
func (c *Client) FetchFactors(ctx context.Context) (*frame.Frame, error) {
	return c.fetch(ctx, "factors", "/intensity/factors", c.http.R)
}

func (c *Client) fetch(ctx context.Context, name, path string, newRequest func() *resty.Request) (*frame.Frame, error) {
	var body []byte
	op := fmt.Sprintf("GET %s", path)
	err := retry.Execute(ctx, c.policy, op, func(ctx context.Context) error {
		resp, err := newRequest().SetContext(ctx).Get(path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return exception.NewBatchError(moduleName, fmt.Sprintf("%s cancelled", op), err, false, false)
			}
			return exception.NewRetryableError(moduleName, fmt.Sprintf("%s failed", op), err)
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return exception.NewRetryableError(moduleName,
				fmt.Sprintf("%s returned status %d", resp.Request.URL, resp.StatusCode()), nil)
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	columns, records, err := flattenData(body)
	if err != nil {
		logger.Warnf("Unusable %s response (%d bytes), treating as empty: %v", name, len(body), err)
		return frame.New(), nil
	}
	if len(records) == 0 {
		logger.Warnf("The %s response contained no records.", name)
		return frame.New(), nil
	}
	logger.Infof("Fetched %d %s records.", len(records), name)
	return frame.FromRecords(columns, records), nil
}
