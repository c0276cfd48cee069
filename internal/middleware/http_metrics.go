package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// infrastructurePaths are served as-is and never counted or traced.
var infrastructurePaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// normalizePath maps request paths onto route patterns so candidate, feature
// and comparison IDs do not blow up metric cardinality. Anything that is not
// a known route collapses to "other".
func normalizePath(path string) string {
	if infrastructurePaths[path] {
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return "other"
		}
	}
	switch {
	case len(parts) == 3 && parts[0] == "scores":
		return "/scores/{candidateId}/{featureId}"
	case len(parts) == 2 && parts[0] == "hunches":
		return "/hunches/{candidateId}"
	case len(parts) == 3 && parts[0] == "comparisons" && parts[2] == "ranking":
		return "/comparisons/{id}/ranking"
	}
	return "other"
}

func excludedFromMetrics(path string) bool {
	return infrastructurePaths[path]
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// HTTPMetrics records duration, sizes and counts per normalized route, and
// tracks requests in flight. Infrastructure endpoints are skipped.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excludedFromMetrics(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			done := metrics.trackInFlight()
			defer done()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(status),
				time.Since(start).Seconds(),
				max(r.ContentLength, 0),
				rec.size,
			)
		})
	}
}
