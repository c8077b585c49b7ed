// Package model defines shared types for the gateway.
package model

import (
	"net/http"
	"net/url"
)

// UpstreamTarget is a named upstream service resolved from configuration at startup.
type UpstreamTarget struct {
	Name    string
	BaseURL *url.URL
}

// ForwardedRequest is the request sent to an upstream on behalf of one inbound request.
type ForwardedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// URL joins the target base URL with the request path and re-encoded query.
func (r *ForwardedRequest) URL(target UpstreamTarget) string {
	u := *target.BaseURL
	u.Path = singleJoiningSlash(target.BaseURL.Path, r.Path)
	u.RawPath = ""
	u.RawQuery = ""
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}
	return u.String()
}

func singleJoiningSlash(a, b string) string {
	switch aslash, bslash := len(a) > 0 && a[len(a)-1] == '/', len(b) > 0 && b[0] == '/'; {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}

// ErrorResponse is the JSON envelope for every non-2xx response the gateway produces.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// NotFoundResponse is returned when no route matches the inbound request.
type NotFoundResponse struct {
	Error           string   `json:"error"`
	Details         string   `json:"details"`
	AvailableRoutes []string `json:"availableRoutes"`
}
