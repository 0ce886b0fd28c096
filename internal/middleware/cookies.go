package middleware

import (
	"net/url"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/pipeline"
)

// CookieParser returns the stage that decodes the Cookie header into a
// name to value map. Percent-encoded values are decoded when valid.
func CookieParser() pipeline.Stage {
	return pipeline.Stage{
		Name: StageCookies,
		Run: func(c echo.Context) pipeline.Outcome {
			cookies := c.Cookies()
			out := make(map[string]string, len(cookies))
			for _, ck := range cookies {
				if _, seen := out[ck.Name]; seen {
					continue
				}
				v := ck.Value
				if dec, err := url.QueryUnescape(v); err == nil {
					v = dec
				}
				out[ck.Name] = v
			}
			pipeline.SetCookies(c, out)
			return pipeline.Continue()
		},
	}
}
