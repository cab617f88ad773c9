package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const maxErrorBody = 256

// RESTClient is a rate limited JSON client for exchange APIs the SDKs do not cover.
type RESTClient struct {
	name    string
	http    *resty.Client
	limiter *rate.Limiter
}

// Request is one signed call. URL is absolute and already carries the query string.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// NewRESTClient creates a client named after the exchange it talks to.
// requestsPerSec <= 0 disables throttling.
func NewRESTClient(name string, timeout time.Duration, requestsPerSec float64) *RESTClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}

	return &RESTClient{
		name:    name,
		http:    resty.New().SetTimeout(timeout),
		limiter: limiter,
	}
}

// Do sends req and decodes the JSON response into out.
func (c *RESTClient) Do(ctx context.Context, req Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "%s rate limiter", c.name)
	}

	r := c.http.R().SetContext(ctx).SetHeaders(req.Headers)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, req.URL)
	}

	if resp.StatusCode() >= http.StatusMultipleChoices {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fmt.Errorf("%s responded %d: %s", c.name, resp.StatusCode(), string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s response", c.name)
	}

	return nil
}
