// Package service implements the resource rules between the HTTP handlers
// and the document store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/auth"
	"devcamper-api/internal/store"
)

// ResourceService validates, stores and projects the documents of every
// collection.
type ResourceService struct {
	store      store.Store
	schemas    map[string]*Schema
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
}

// Option configures a ResourceService.
type Option func(*ResourceService)

// WithClock sets the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *ResourceService) { s.now = now }
}

// WithBcryptCost sets the cost used to hash secret fields.
func WithBcryptCost(cost int) Option {
	return func(s *ResourceService) { s.bcryptCost = cost }
}

// NewResourceService creates a ResourceService over st.
func NewResourceService(st store.Store, logger *slog.Logger, opts ...Option) *ResourceService {
	s := &ResourceService{
		store:   st,
		schemas: Schemas(),
		logger:  logger.With("component", "resource_service"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ResourceService) schema(collection string) (*Schema, error) {
	sc, ok := s.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("service: unknown collection %q", collection)
	}
	return sc, nil
}

// List returns one page of collection matching params. Scope adds fixed
// equality filters, e.g. the parent bootcamp of nested routes.
func (s *ResourceService) List(ctx context.Context, collection string, params ListParams, scope map[string]any) (*Page, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}

	filter := make(map[string]any, len(params.Filter)+len(scope))
	for k, v := range params.Filter {
		if sc.secret(k) {
			continue
		}
		if raw, ok := v.(string); ok {
			filter[k] = sc.coerceFilter(k, raw)
			continue
		}
		filter[k] = v
	}
	maps.Copy(filter, scope)

	page := max(params.Page, 1)
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	docs, total, err := s.store.List(ctx, collection, store.Query{
		Filter: filter,
		Select: params.Select,
		Sort:   params.Sort,
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if errors.Is(err, store.ErrInvalidID) {
		// A malformed id filter matches nothing.
		docs, total, err = nil, 0, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.public(sc, d))
	}
	return &Page{Data: out, Total: total, Pagination: pagination(page, limit, total)}, nil
}

// Get returns one document by id.
func (s *ResourceService) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	d, err := s.find(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	return s.public(sc, d), nil
}

// Create validates body and stores it as a new document. Fields in fixed,
// such as the owning user or parent bootcamp, override the body.
func (s *ResourceService) Create(ctx context.Context, collection string, body, fixed map[string]any) (map[string]any, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}

	in := maps.Clone(body)
	if in == nil {
		in = map[string]any{}
	}
	maps.Copy(in, fixed)

	doc, problems := sc.clean(in, false)
	if len(problems) > 0 {
		return nil, apperr.Validation(strings.Join(problems, ", "))
	}
	if err := s.checkTogether(ctx, sc, doc); err != nil {
		return nil, err
	}
	if err := s.prepare(sc, doc); err != nil {
		return nil, err
	}
	doc["createdAt"] = s.now().UTC()

	created, err := s.store.Create(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("document created", "collection", collection, "id", created.ID())
	return s.public(sc, created), nil
}

// Update applies the fields present in body to the document id.
func (s *ResourceService) Update(ctx context.Context, collection, id string, body map[string]any) (map[string]any, error) {
	sc, err := s.schema(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, sc, id); err != nil {
		return nil, err
	}

	patch, problems := sc.clean(body, true)
	if len(problems) > 0 {
		return nil, apperr.Validation(strings.Join(problems, ", "))
	}
	if err := s.prepare(sc, patch); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, collection, id, patch)
	if err != nil {
		return nil, s.notFound(sc, id, err)
	}
	return s.public(sc, updated), nil
}

// Delete removes the document id. Deleting a bootcamp also removes its
// courses and reviews.
func (s *ResourceService) Delete(ctx context.Context, collection, id string) error {
	sc, err := s.schema(collection)
	if err != nil {
		return err
	}
	if _, err := s.find(ctx, sc, id); err != nil {
		return err
	}

	if collection == Bootcamps {
		for _, child := range []string{Courses, Reviews} {
			if err := s.deleteWhere(ctx, child, map[string]any{"bootcamp": id}); err != nil {
				return err
			}
		}
	}

	if err := s.store.Delete(ctx, collection, id); err != nil {
		return s.notFound(sc, id, err)
	}
	s.logger.Debug("document deleted", "collection", collection, "id", id)
	return nil
}

func (s *ResourceService) deleteWhere(ctx context.Context, collection string, filter map[string]any) error {
	docs, _, err := s.store.List(ctx, collection, store.Query{Filter: filter, Select: []string{store.IDField}})
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.store.Delete(ctx, collection, d.ID()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if len(docs) > 0 {
		s.logger.Debug("cascade delete", "collection", collection, "count", len(docs))
	}
	return nil
}

// checkTogether rejects doc when another document shares all values of one
// of the schema's UniqueTogether groups.
func (s *ResourceService) checkTogether(ctx context.Context, sc *Schema, doc map[string]any) error {
	for _, group := range sc.UniqueTogether {
		filter := make(map[string]any, len(group))
		for _, f := range group {
			if v, ok := doc[f]; ok {
				filter[f] = v
			}
		}
		if len(filter) != len(group) {
			continue
		}
		_, err := s.store.FindOne(ctx, sc.Collection, filter)
		switch {
		case err == nil:
			return fmt.Errorf("%s %v: %w", sc.Collection, group, store.ErrDuplicate)
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		default:
			return err
		}
	}
	return nil
}

// Exists reports whether collection holds a document with id.
func (s *ResourceService) Exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := s.store.Get(ctx, collection, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		return false, nil
	}
	return false, err
}

// FindOne returns the first raw document matching filter, secrets included.
func (s *ResourceService) FindOne(ctx context.Context, collection string, filter map[string]any) (store.Document, error) {
	return s.store.FindOne(ctx, collection, filter)
}

func (s *ResourceService) find(ctx context.Context, sc *Schema, id string) (store.Document, error) {
	d, err := s.store.Get(ctx, sc.Collection, id)
	if err != nil {
		return nil, s.notFound(sc, id, err)
	}
	return d, nil
}

func (s *ResourceService) notFound(sc *Schema, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		return apperr.NotFound(fmt.Sprintf("%s not found with id of %s", sc.Singular, id))
	}
	return err
}

// prepare derives computed fields and hashes secrets before a write.
func (s *ResourceService) prepare(sc *Schema, doc map[string]any) error {
	if name, ok := doc["name"].(string); ok && sc.Collection == Bootcamps {
		doc["slug"] = slugify(name)
	}
	for _, f := range sc.Fields {
		v, ok := doc[f.Name].(string)
		if !f.Secret || !ok {
			continue
		}
		hash, err := auth.HashPassword(v, s.bcryptCost)
		if err != nil {
			return apperr.Internal("hash secret", err)
		}
		doc[f.Name] = hash
	}
	return nil
}

// public strips secret fields from d.
func (s *ResourceService) public(sc *Schema, d store.Document) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if !sc.secret(k) {
			out[k] = v
		}
	}
	return out
}
