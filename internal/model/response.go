// Package model defines the JSON envelopes shared by handlers and the error stage.
package model

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DataResponse wraps a single resource or an empty object.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ListResponse wraps a page of resources.
type ListResponse struct {
	Success    bool       `json:"success"`
	Count      int        `json:"count"`
	Pagination Pagination `json:"pagination"`
	Data       any        `json:"data"`
}

// Pagination links to neighbouring pages; a nil side is omitted.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// PageRef identifies a page of results.
type PageRef struct {
	Page  int64 `json:"page"`
	Limit int64 `json:"limit"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// Fail builds an error envelope.
func Fail(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}

// OK builds a success envelope around data.
func OK(data any) DataResponse {
	return DataResponse{Success: true, Data: data}
}
