package race

import (
	"net/http"
	"net/url"
	"strings"
)

// Session is the authenticated context shared read-only by every lot of a
// batch. Only the batch coordinator closes it.
type Session struct {
	Client    *http.Client
	BaseURL   *url.URL
	Token     string
	BuyerCode string
}

// URL resolves path against the session base address.
func (s *Session) URL(path string) string {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return s.BaseURL.String()
	}
	base := *s.BaseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if path == "/" {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}

// Close releases idle pooled connections.
func (s *Session) Close() {
	if s == nil || s.Client == nil {
		return
	}
	s.Client.CloseIdleConnections()
}
