package pipeline

import (
	"mime/multipart"

	"github.com/labstack/echo/v4"
)

const (
	bodyKey    = "pipeline.body"
	cookiesKey = "pipeline.cookies"
	filesKey   = "pipeline.files"
)

// Body returns the parsed request body. It is never nil: requests without a
// parsed body get an empty map.
func Body(c echo.Context) map[string]any {
	if m, ok := c.Get(bodyKey).(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	c.Set(bodyKey, m)
	return m
}

// SetBody replaces the parsed request body.
func SetBody(c echo.Context, m map[string]any) {
	if m == nil {
		m = map[string]any{}
	}
	c.Set(bodyKey, m)
}

// Cookies returns the parsed request cookies, never nil.
func Cookies(c echo.Context) map[string]string {
	if m, ok := c.Get(cookiesKey).(map[string]string); ok {
		return m
	}
	m := map[string]string{}
	c.Set(cookiesKey, m)
	return m
}

// SetCookies replaces the parsed request cookies.
func SetCookies(c echo.Context, m map[string]string) {
	c.Set(cookiesKey, m)
}

// Files returns uploaded files keyed by form field name, never nil.
func Files(c echo.Context) map[string][]*multipart.FileHeader {
	if m, ok := c.Get(filesKey).(map[string][]*multipart.FileHeader); ok {
		return m
	}
	return map[string][]*multipart.FileHeader{}
}

// SetFiles records uploaded files for the request.
func SetFiles(c echo.Context, m map[string][]*multipart.FileHeader) {
	c.Set(filesKey, m)
}
