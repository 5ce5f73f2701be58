package http

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/zkreputation/verification-node/internal/log"
)

const (
	retryWaitMin = 200 * time.Millisecond
	retryWaitMax = 2 * time.Second
)

// NewClientWithRetry returns a standard http client whose transport retries failed requests
// up to retryMax times with exponential backoff. Retries are logged with the context logger.
func NewClientWithRetry(ctx context.Context, retryMax int, timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = log.FromContext(ctx)
	return &http.Client{
		Timeout: timeout,
		Transport: &retryablehttp.RoundTripper{
			Client: rc,
		},
	}
}
