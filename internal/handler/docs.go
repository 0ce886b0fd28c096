package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// DocsHandler serves the pre-built API document as JSON.
type DocsHandler struct {
	body []byte
}

// LoadDocs reads the YAML or JSON document at path. A missing file is
// reported with an error wrapping os.ErrNotExist.
func LoadDocs(path string) (*DocsHandler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read docs: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse docs %s: %w", path, err)
	}
	root, ok := jsonValue(doc).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse docs %s: top level is not a mapping", path)
	}

	body, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode docs %s: %w", path, err)
	}
	return &DocsHandler{body: body}, nil
}

// Serve writes the document.
func (h *DocsHandler) Serve(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, h.body)
}

// jsonValue converts YAML mappings with non-string keys into JSON objects.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = jsonValue(x)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[fmt.Sprint(k)] = jsonValue(x)
		}
		return out
	case []any:
		for i, x := range t {
			t[i] = jsonValue(x)
		}
		return t
	default:
		return v
	}
}
