package service

import (
	"net/http"
	"strings"

	"edge-gateway/internal/model"
)

// Classify maps a failure to the client-facing status and error body.
// Unknown kinds are treated as internal errors.
func Classify(f model.Failure) (int, model.ErrorResponse) {
	switch f.Kind {
	case model.UpstreamError:
		return http.StatusBadGateway, model.ErrorResponse{
			Error:   DisplayName(f.Service) + " service error",
			Details: f.Detail,
		}
	case model.UpstreamUnreachable:
		return http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   DisplayName(f.Service) + " service unavailable",
			Details: "Could not reach " + strings.ToLower(DisplayName(f.Service)) + " service",
		}
	default:
		detail := f.Detail
		if detail == "" && f.Err != nil {
			detail = f.Err.Error()
		}
		return http.StatusInternalServerError, model.ErrorResponse{
			Error:   "Gateway error",
			Details: detail,
		}
	}
}

// DisplayName capitalises a service name: "product" becomes "Product".
func DisplayName(service string) string {
	if service == "" {
		return "Upstream"
	}
	s := strings.ToLower(service)
	return strings.ToUpper(s[:1]) + s[1:]
}
