package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented wraps a Store and observes the latency of each call,
// labelled by operation and collection.
type Instrumented struct {
	next     Store
	duration prometheus.ObserverVec
}

// Instrument returns s wrapped with latency observation.
func Instrument(s Store, duration prometheus.ObserverVec) *Instrumented {
	return &Instrumented{next: s, duration: duration}
}

func (i *Instrumented) observe(op, collection string, start time.Time) {
	i.duration.WithLabelValues(op, collection).Observe(time.Since(start).Seconds())
}

// List implements Store.
func (i *Instrumented) List(ctx context.Context, collection string, q Query) ([]Document, int64, error) {
	defer i.observe("list", collection, time.Now())
	return i.next.List(ctx, collection, q)
}

// Get implements Store.
func (i *Instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	defer i.observe("get", collection, time.Now())
	return i.next.Get(ctx, collection, id)
}

// FindOne implements Store.
func (i *Instrumented) FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error) {
	defer i.observe("find_one", collection, time.Now())
	return i.next.FindOne(ctx, collection, filter)
}

// Create implements Store.
func (i *Instrumented) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	defer i.observe("create", collection, time.Now())
	return i.next.Create(ctx, collection, doc)
}

// Update implements Store.
func (i *Instrumented) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	defer i.observe("update", collection, time.Now())
	return i.next.Update(ctx, collection, id, patch)
}

// Delete implements Store.
func (i *Instrumented) Delete(ctx context.Context, collection, id string) error {
	defer i.observe("delete", collection, time.Now())
	return i.next.Delete(ctx, collection, id)
}

// Ping implements Store.
func (i *Instrumented) Ping(ctx context.Context) error { return i.next.Ping(ctx) }

// Close implements Store.
func (i *Instrumented) Close(ctx context.Context) error { return i.next.Close(ctx) }
