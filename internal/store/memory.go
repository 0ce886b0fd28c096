package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Unique lists, per collection, the fields
// whose values must not repeat.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	unique      map[string][]string
}

type memCollection struct {
	docs  map[string]Document
	order []string
}

// NewMemory creates an empty in-memory store.
func NewMemory(unique map[string][]string) *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
		unique:      unique,
	}
}

func (m *Memory) coll(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Document)}
		m.collections[name] = c
	}
	return c
}

// List implements Store.
func (m *Memory) List(_ context.Context, collection string, q Query) ([]Document, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.coll(collection)
	matched := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		if matches(d, q.Filter) {
			matched = append(matched, d)
		}
	}
	total := int64(len(matched))

	if len(q.Sort) > 0 {
		slices.SortStableFunc(matched, func(a, b Document) int {
			for _, f := range q.Sort {
				desc := strings.HasPrefix(f, "-")
				f = strings.TrimPrefix(f, "-")
				if r := compareValues(a[f], b[f]); r != 0 {
					if desc {
						return -r
					}
					return r
				}
			}
			return 0
		})
	}

	start := min(q.Skip, total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}

	out := make([]Document, 0, end-start)
	for _, d := range matched[start:end] {
		out = append(out, project(d, q.Select))
	}
	return out, total, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.coll(collection).docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(d), nil
}

// FindOne implements Store.
func (m *Memory) FindOne(_ context.Context, collection string, filter map[string]any) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.coll(collection)
	for _, id := range c.order {
		if d := c.docs[id]; matches(d, filter) {
			return maps.Clone(d), nil
		}
	}
	return nil, ErrNotFound
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, collection string, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.coll(collection)
	d := maps.Clone(doc)
	if d == nil {
		d = Document{}
	}
	if d.ID() == "" {
		d[IDField] = uuid.NewString()
	}
	if _, exists := c.docs[d.ID()]; exists {
		return nil, fmt.Errorf("create %s: %w", collection, ErrDuplicate)
	}
	if err := m.checkUnique(collection, c, d); err != nil {
		return nil, err
	}

	c.docs[d.ID()] = d
	c.order = append(c.order, d.ID())
	return maps.Clone(d), nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, collection, id string, patch Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.coll(collection)
	cur, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := maps.Clone(cur)
	for k, v := range patch {
		if k == IDField {
			continue
		}
		next[k] = v
	}
	if err := m.checkUnique(collection, c, next); err != nil {
		return nil, err
	}

	c.docs[id] = next
	return maps.Clone(next), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.coll(collection)
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) checkUnique(collection string, c *memCollection, d Document) error {
	for _, f := range m.unique[collection] {
		v, ok := d[f]
		if !ok {
			continue
		}
		for id, other := range c.docs {
			if ov, ok := other[f]; ok && id != d.ID() && fmt.Sprint(ov) == fmt.Sprint(v) {
				return fmt.Errorf("%s.%s: %w", collection, f, ErrDuplicate)
			}
		}
	}
	return nil
}

// matches reports whether every filter field equals the document's value.
// Values compare by their string form so that query-string filters match
// numeric fields.
func matches(d Document, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := d[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func project(d Document, fields []string) Document {
	if len(fields) == 0 {
		return maps.Clone(d)
	}
	out := Document{IDField: d[IDField]}
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
