package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorWriter renders a guard failure (lock, reload or persist) as an HTTP
// response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// statusError marks a handler response that counts as failure.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("handler responded %d", e.code) }

// Middleware runs every request through g. The handler's response is
// buffered and sent only once the cycle completes, so a client never sees
// success for a change that failed to persist. A status of 500 or above
// counts as handler failure: the response is sent as written and unsaved
// changes are dropped. Guard failures are rendered by onError.
func Middleware(g *Guard, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := newBufferedWriter()
			err := g.Do(r.Context(), func(ctx context.Context) error {
				next.ServeHTTP(buf, r.WithContext(ctx))
				if buf.status >= http.StatusInternalServerError {
					return &statusError{code: buf.status}
				}
				return nil
			})

			var se *statusError
			if err != nil && !errors.As(err, &se) {
				onError(w, r, err)
				return
			}
			buf.flush(w)
		})
	}
}

// bufferedWriter collects a handler's response in memory.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	w.WriteHeader(b.status)
	_, _ = b.body.WriteTo(w)
}
