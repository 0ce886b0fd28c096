package middleware

import (
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/pipeline"
)

// HPP returns the parameter-pollution guard. A query parameter given more
// than once keeps only its last value, unless it is whitelisted. Repeated
// fields of URL-encoded form bodies are collapsed the same way.
//
// The query is rewritten in place, so the stage must run before anything
// reads c.QueryParams (Echo caches the parsed query). A rewritten query is
// re-encoded with its keys sorted, so the original parameter order is lost.
// A query with no repeated keys is left byte-for-byte as sent.
func HPP(whitelist []string) pipeline.Stage {
	allowed := func(k string) bool { return slices.Contains(whitelist, k) }

	return pipeline.Stage{
		Name: StageHPP,
		Run: func(c echo.Context) pipeline.Outcome {
			req := c.Request()

			q := req.URL.Query()
			changed := false
			for k, vs := range q {
				if len(vs) > 1 && !allowed(k) {
					q[k] = vs[len(vs)-1:]
					changed = true
				}
			}
			if changed {
				req.URL.RawQuery = q.Encode()
			}

			if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) {
				body := pipeline.Body(c)
				for k, v := range body {
					if list, ok := v.([]any); ok && len(list) > 0 && !allowed(k) {
						body[k] = list[len(list)-1]
					}
				}
			}
			return pipeline.Continue()
		},
	}
}
