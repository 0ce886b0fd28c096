package middleware

import (
	"net/http"

	echomw "github.com/labstack/echo/v4/middleware"

	"devcamper-api/internal/pipeline"
)

// CORS returns the stage applying an allow-all-origins policy. Preflight
// requests are answered with 204 and never reach a handler.
func CORS() pipeline.Stage {
	return pipeline.Adapt(StageCORS, echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPut,
			http.MethodPatch, http.MethodPost, http.MethodDelete,
		},
	}))
}
