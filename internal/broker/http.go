package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// LoadFromURL fetches a registryDocument from a resty-backed HTTP GET and
// loads it, retrying transient failures the same way
// internal/execution.HTTPBackend retries venue REST calls.
func (r *Registry) LoadFromURL(ctx context.Context, url string) error {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= 500
		})

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("broker: fetch registry from %s: %w", url, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("broker: fetch registry from %s: status %d", url, resp.StatusCode())
	}
	return r.loadFromJSON(resp.Body())
}
