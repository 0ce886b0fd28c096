package middleware

import (
	"html"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"devcamper-api/internal/pipeline"
)

// MongoSanitize returns the stage that removes every key starting with "$"
// from the parsed body, at any depth.
func MongoSanitize() pipeline.Stage {
	return pipeline.Stage{
		Name: StageSanitize,
		Run: func(c echo.Context) pipeline.Outcome {
			stripOperators(pipeline.Body(c))
			return pipeline.Continue()
		},
	}
}

func stripOperators(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if strings.HasPrefix(k, "$") {
				delete(t, k)
				continue
			}
			stripOperators(child)
		}
	case []any:
		for _, child := range t {
			stripOperators(child)
		}
	}
}

// XSSClean returns the stage that strips all markup from the top-level
// string fields of the parsed body, including strings inside top-level
// lists such as a repeated form field.
func XSSClean() pipeline.Stage {
	policy := bluemonday.StrictPolicy()
	return pipeline.Stage{
		Name: StageXSS,
		Run: func(c echo.Context) pipeline.Outcome {
			body := pipeline.Body(c)
			for k, v := range body {
				switch t := v.(type) {
				case string:
					body[k] = cleanString(policy, t)
				case []any:
					for i, x := range t {
						if s, ok := x.(string); ok {
							t[i] = cleanString(policy, s)
						}
					}
				}
			}
			return pipeline.Continue()
		},
	}
}

// cleanString sanitizes s and decodes the entities the policy escaped, so that
// plain text such as "Don't" or "a & b" comes back unchanged. Decoding can
// reveal markup that was entity-encoded, so it repeats until nothing changes.
// Every pass after the first shrinks the string, so len(s) passes are enough
// to reach a value that a further pass leaves alone.
func cleanString(p *bluemonday.Policy, s string) string {
	for range len(s) + 2 {
		out := html.UnescapeString(p.Sanitize(s))
		if out == s {
			return out
		}
		s = out
	}
	return s
}
