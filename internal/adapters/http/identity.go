package httpadapter

import (
	"net/http"

	"lumen/internal/domain"
)

// HeaderUserSource resolves the caller from the X-User-ID header set by
// the authenticating proxy. Session handling itself lives outside this
// service.
type HeaderUserSource struct{}

func (HeaderUserSource) CurrentUser(r *http.Request) (string, error) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}
