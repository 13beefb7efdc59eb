package routes

import (
	"net/http"
	"strings"
)

// RobotsTxt renders the crawl policy: every role-scoped prefix is disallowed,
// everything else is open.
func RobotsTxt() string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, prefix := range crawlExcludedPrefixes {
		b.WriteString("Disallow: ")
		b.WriteString(prefix)
		b.WriteByte('\n')
	}
	b.WriteString("Allow: /\n")
	return b.String()
}

// RobotsHandler serves robots.txt.
func RobotsHandler() http.HandlerFunc {
	body := []byte(RobotsTxt())
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(body)
	}
}
