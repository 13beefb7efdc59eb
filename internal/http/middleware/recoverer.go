package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Recoverer converts handler panics into a 500 with a correlation id the
// user can quote to support. The stack goes to the log, never to the client.
func Recoverer(logger *logging.Logger, env string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				correlationID := uuid.NewString()
				logger.Error("panic recovered",
					"correlation_id", correlationID,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				if wantsJSON(r) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal error","correlation_id":"` + correlationID + `"}`))
					return
				}
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				body := "<html><body><h1>Something went wrong</h1><p>Please retry. Reference: " + correlationID + "</p></body></html>"
				if env == "development" {
					body = "<html><body><h1>Something went wrong</h1><pre>" + correlationID + "</pre></body></html>"
				}
				_, _ = w.Write([]byte(body))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
