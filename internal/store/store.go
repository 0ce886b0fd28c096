// Package store persists bootcamps, courses, reviews and users as schemaless
// documents. Memory is used for development and tests; Mongo talks to
// MongoDB.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID is returned when an id cannot be parsed by the backend.
	ErrInvalidID = errors.New("invalid document id")

	// ErrDuplicate is returned when a unique field value already exists.
	ErrDuplicate = errors.New("duplicate field value")
)

// IDField is the document key holding the document id.
const IDField = "_id"

// Document is a stored record.
type Document map[string]any

// ID returns the document id as a string.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Query narrows a List call.
type Query struct {
	// Filter holds field equality conditions.
	Filter map[string]any

	// Select limits the returned fields. The id is always returned.
	Select []string

	// Sort lists fields in priority order; a leading '-' sorts descending.
	Sort []string

	Skip  int64
	Limit int64
}

// Store is the persistence collaborator used by the services.
type Store interface {
	List(ctx context.Context, collection string, q Query) ([]Document, int64, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error)
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	Update(ctx context.Context, collection, id string, patch Document) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
