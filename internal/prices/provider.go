package prices

import (
	"context"
	"time"
)

// Group is a reporting bucket (a metro area) and the ZIP code used to find
// stores near it.
type Group struct {
	Name    string `json:"name"`
	ZipCode string `json:"zip_code"`
}

// Key returns the identifier rows of this group are stored under.
func (g Group) Key() string {
	return g.Name
}

// Provider abstracts the product-lookup API. Fetch returns one observation
// for the group; when no store carries a price the observation has an absent
// Value rather than an error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, group Group) (Observation, error)
}

// Store persists the dataset. Save replaces the stored history with ds.
type Store interface {
	Load(ctx context.Context) (Dataset, error)
	Save(ctx context.Context, ds Dataset) error
}

// Publisher hands a rendered report to a presentation target.
type Publisher interface {
	Publish(ctx context.Context, doc Document, ds Dataset) error
}

// CollectionObserver receives per-run statistics.
type CollectionObserver interface {
	ObserveCollection(result CollectResult, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveCollection(CollectResult, time.Duration, error) {}
