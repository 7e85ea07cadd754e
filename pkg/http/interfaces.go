//go:generate mockgen -destination=mocks/http.go . Doer
package http

import "net/http"

// Doer sends HTTP requests. *HTTPClient and *http.Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
