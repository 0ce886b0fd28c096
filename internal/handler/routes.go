package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"devcamper-api/internal/auth"
	"devcamper-api/internal/config"
)

// Routes holds everything RegisterRoutes mounts. Docs and Metrics may be nil.
type Routes struct {
	Health    *HealthHandler
	Resources *Resources
	Photos    *PhotoHandler
	Auth      *AuthHandler
	Docs      *DocsHandler
	Metrics   http.Handler

	// Protect requires a signed-in user.
	Protect echo.MiddlewareFunc
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, r Routes) {
	e.GET("/healthz", r.Health.Healthz)

	api := e.Group("/api/v1")
	api.GET("/status", r.Health.Status)

	res := r.Resources
	reviewer := []echo.MiddlewareFunc{r.Protect, auth.Authorize(auth.RoleUser, auth.RoleAdmin)}

	bootcamps := api.Group("/bootcamps")
	bootcamps.GET("", res.Bootcamps.List)
	bootcamps.POST("", res.Bootcamps.Create)
	bootcamps.GET("/:id", res.Bootcamps.Get)
	bootcamps.PUT("/:id", res.Bootcamps.Update)
	bootcamps.PATCH("/:id", res.Bootcamps.Update)
	bootcamps.DELETE("/:id", res.Bootcamps.Delete)
	bootcamps.PUT("/:id/photo", r.Photos.Upload)
	bootcamps.GET("/:bootcampId/courses", res.Courses.List)
	bootcamps.POST("/:bootcampId/courses", res.Courses.Create)
	bootcamps.GET("/:bootcampId/reviews", res.Reviews.List)
	bootcamps.POST("/:bootcampId/reviews", res.Reviews.Create, reviewer...)

	courses := api.Group("/courses")
	courses.GET("", res.Courses.List)
	courses.POST("", res.Courses.Create)
	courses.GET("/:id", res.Courses.Get)
	courses.PUT("/:id", res.Courses.Update)
	courses.PATCH("/:id", res.Courses.Update)
	courses.DELETE("/:id", res.Courses.Delete)

	reviews := api.Group("/reviews")
	reviews.GET("", res.Reviews.List)
	reviews.GET("/:id", res.Reviews.Get)
	reviews.POST("", res.Reviews.Create, reviewer...)
	reviews.PUT("/:id", res.Reviews.Update, reviewer...)
	reviews.PATCH("/:id", res.Reviews.Update, reviewer...)
	reviews.DELETE("/:id", res.Reviews.Delete, reviewer...)

	users := api.Group("/users", r.Protect, auth.Authorize(auth.RoleAdmin))
	users.GET("", res.Users.List)
	users.POST("", res.Users.Create)
	users.GET("/:id", res.Users.Get)
	users.PUT("/:id", res.Users.Update)
	users.PATCH("/:id", res.Users.Update)
	users.DELETE("/:id", res.Users.Delete)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", r.Auth.Register)
	authRoutes.POST("/login", r.Auth.Login)
	authRoutes.GET("/me", r.Auth.Me, r.Protect)
	authRoutes.GET("/logout", r.Auth.Logout)

	if r.Docs != nil {
		e.GET(cfg.Docs.Path, r.Docs.Serve)
	}
	if cfg.Metrics.Enabled && r.Metrics != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(r.Metrics))
	}
	if cfg.Server.StaticDir != "" {
		// Unknown paths must still reach the router's 404 for every method.
		e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
			Root: cfg.Server.StaticDir,
			Skipper: func(c echo.Context) bool {
				m := c.Request().Method
				return m != http.MethodGet && m != http.MethodHead
			},
		}))
	}
}
