// Package api implements the transports for the two NAV services: the
// SOAP 1.2 cash register file service (with its MTOM multipart binary
// responses) and the REST XML online invoice digest service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/util"
)

const (
	// DefaultTimeout is deliberately generous: NAV assembles large
	// journal attachments on the fly and can take minutes.
	DefaultTimeout = 120 * time.Second

	// retryWait is the fixed backoff before the single retry NAV's
	// transient rate limiting gets.
	retryWait = 2 * time.Second

	contentTypeSOAP = "application/soap+xml; charset=utf-8"
	contentTypeXML  = "application/xml"
)

type Client interface {
	PostXML(ctx context.Context, url, contentType string, body []byte) (*resty.Response, error)
}

type client struct {
	rest *resty.Client
}

// New creates the shared HTTP client. A 429 from NAV is retried exactly
// once after a short fixed wait; every other failure surfaces directly.
func New() Client {
	restyClient := resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(1).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	return &client{rest: restyClient}
}

// NewWithTimeout creates a client with a caller-chosen timeout.
func NewWithTimeout(timeout time.Duration) Client {
	c := New().(*client)
	c.rest.SetTimeout(timeout)
	return c
}

func (c *client) PostXML(ctx context.Context, url, contentType string, body []byte) (*resty.Response, error) {

	r := c.rest.R().SetContext(ctx)
	if util.HttpTraceEnabled() {
		r.EnableTrace()
	}

	resp, err := r.
		SetBody(body).
		SetHeader("Content-Type", contentType).
		SetHeader("Accept", "application/soap+xml, application/xml, text/xml, */*").
		Post(url)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(nav.ErrServiceUnavailable, err.Error())
	}
	return resp, nil
}
