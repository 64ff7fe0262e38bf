package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/freshcart/grocery-delivery/internal/identity"
)

var requestHeaders = []string{
	"Content-Type",
	"Accept",
	identity.HeaderUserID,
	identity.HeaderUserRole,
}

var responseHeaders = []string{
	"Content-Type",
	"Location",
	"Retry-After",
}

type ServiceProxy struct {
	base   *url.URL
	client *http.Client
}

func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	base, err := url.Parse(baseURL)
	if err != nil {
		panic(fmt.Sprintf("gateway: invalid upstream URL %q: %v", baseURL, err))
	}
	return &ServiceProxy{base: base, client: client}
}

func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := *p.base
	target.Path = p.base.Path + path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header, requestHeaders)

	return p.client.Do(req)
}

func copyHeaders(dst, src http.Header, names []string) {
	for _, name := range names {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}
