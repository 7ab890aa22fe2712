package nethttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// requestAdapter adapts *http.Request (routed by chi) to engine.Request.
type requestAdapter struct {
	r *http.Request
}

func newRequest(r *http.Request) *requestAdapter {
	return &requestAdapter{r: r}
}

func (a *requestAdapter) GetMethod() string { return a.r.Method }
func (a *requestAdapter) GetUrl() string    { return a.r.URL.Path }

func (a *requestAdapter) GetHeader(name string) string {
	return a.r.Header.Get(name)
}

func (a *requestAdapter) GetQuery(name string) string {
	return a.r.URL.Query().Get(name)
}

// GetParameter resolves a chi route parameter by name. chi has no
// positional lookup, so an indexOrName that isn't bound to a chi
// URLParam simply resolves empty.
func (a *requestAdapter) GetParameter(indexOrName string) string {
	return chi.URLParam(a.r, indexOrName)
}
