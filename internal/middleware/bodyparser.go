package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/pipeline"
)

// BodyParser returns the stage that decodes JSON and URL-encoded form
// payloads into the parsed body. Other content types leave it empty.
func BodyParser() pipeline.Stage {
	return pipeline.Stage{
		Name: StageBody,
		Run: func(c echo.Context) pipeline.Outcome {
			ctype := c.Request().Header.Get(echo.HeaderContentType)

			var (
				body map[string]any
				err  error
			)
			switch {
			case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
				body, err = parseJSON(c)
			case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
				body, err = parseForm(c)
			default:
				body = map[string]any{}
			}
			if err != nil {
				return pipeline.Fail(err)
			}

			pipeline.SetBody(c, body)
			return pipeline.Continue()
		},
	}
}

func parseJSON(c echo.Context) (map[string]any, error) {
	req := c.Request()
	if req.Body == nil {
		return map[string]any{}, nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, readError(err)
	}
	// Leave the payload readable for handlers that bind it themselves.
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	// A single document only; anything after the first value is rejected.
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperr.Parse("Invalid JSON payload", err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.Parse("JSON payload must be an object", nil)
	}
	return m, nil
}

func parseForm(c echo.Context) (map[string]any, error) {
	req := c.Request()
	if err := req.ParseForm(); err != nil {
		return nil, readError(err)
	}
	return formToMap(req.PostForm), nil
}

// formToMap keeps single values as strings and repeated keys as lists.
func formToMap(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
	return out
}

// readError passes Echo errors (such as 413 from the body limit) through and
// treats anything else as a malformed payload.
func readError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return apperr.Parse("Malformed request body", err)
}
