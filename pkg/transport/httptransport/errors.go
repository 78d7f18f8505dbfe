package httptransport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned before sending a request that needs a bearer
// token when client state carries none.
var ErrUnauthenticated = errors.New("httptransport: not signed in")

// StatusError records a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httptransport: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
