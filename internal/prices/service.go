package prices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownGroup is returned for a group that is not configured.
	ErrUnknownGroup = errors.New("group is not configured")
	// ErrNoObservations is returned when a history query matches nothing.
	ErrNoObservations = errors.New("no observations for group in range")
	// ErrNoProvider is returned by Collect when no provider is wired.
	ErrNoProvider = errors.New("no price provider configured")
)

// NotAvailable fills metadata columns of rows without a price.
const NotAvailable = "N/A"

// CollectResult summarises one collection run.
type CollectResult struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Fetched   int    `json:"fetched"`
	Priced    int    `json:"priced"`
	Failed    int    `json:"failed"`
	TotalRows int    `json:"total_rows"`
}

// ServiceConfig bundles what the Service needs besides its collaborators.
type ServiceConfig struct {
	Groups           []Group
	WindowDays       int
	DecimalPrecision int32
	Title            string
	Concurrency      int
}

// Service orchestrates fetching, persisting and reporting.
type Service struct {
	store      Store
	provider   Provider
	publishers []Publisher
	observer   CollectionObserver
	cfg        ServiceConfig
	now        func() time.Time

	// mu serialises collection runs so load/merge/save never interleave.
	mu sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithPublishers adds presentation targets run after every collection.
func WithPublishers(p ...Publisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p...) }
}

// WithObserver sets the collection statistics sink.
func WithObserver(o CollectionObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the clock used to stamp new rows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Service{
		store:    store,
		provider: provider,
		observer: nopObserver{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Groups returns the configured groups in report order.
func (s *Service) Groups() []Group {
	out := make([]Group, len(s.cfg.Groups))
	copy(out, s.cfg.Groups)
	return out
}

// ReportConfig returns the configuration handed to Render.
func (s *Service) ReportConfig() ReportConfig {
	names := make([]string, 0, len(s.cfg.Groups))
	for _, g := range s.cfg.Groups {
		names = append(names, g.Key())
	}
	return ReportConfig{
		Groups:           names,
		WindowDays:       s.cfg.WindowDays,
		DecimalPrecision: s.cfg.DecimalPrecision,
		Title:            s.cfg.Title,
	}
}

// Collect samples every group, appends the new rows to the stored history,
// saves it, and publishes a freshly rendered report.
func (s *Service) Collect(ctx context.Context) (CollectResult, error) {
	start := time.Now()
	result, err := s.collect(ctx)
	s.observer.ObserveCollection(result, time.Since(start), err)
	return result, err
}

func (s *Service) collect(ctx context.Context) (CollectResult, error) {
	result := CollectResult{
		RunID:     uuid.NewString(),
		Timestamp: FormatTimestamp(s.now()),
	}
	logger := log.With().Str("run_id", result.RunID).Logger()

	if s.provider == nil {
		return result, ErrNoProvider
	}

	incoming, failed, err := s.fetchAll(ctx, result.Timestamp)
	if err != nil {
		return result, err
	}
	result.Fetched = len(incoming)
	result.Failed = failed
	for _, o := range incoming {
		if o.Value.Present() {
			result.Priced++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	existing, err := s.store.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load dataset: %w", err)
	}
	merged := Merge(existing, incoming)
	if err := s.store.Save(ctx, merged); err != nil {
		return result, fmt.Errorf("save dataset: %w", err)
	}
	result.TotalRows = len(merged)

	logger.Info().
		Int("existing", len(existing)).
		Int("incoming", len(incoming)).
		Int("priced", result.Priced).
		Msg("dataset updated")

	doc, err := Render(merged, s.ReportConfig())
	if err != nil {
		return result, fmt.Errorf("render report: %w", err)
	}

	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, doc, merged); err != nil {
			logger.Error().Err(err).Msg("publish failed")
			errs = append(errs, err)
		}
	}
	return result, errors.Join(errs...)
}

// fetchAll queries the provider for every group concurrently. A failing group
// still produces a row, with an absent value, so gaps stay visible in history.
func (s *Service) fetchAll(ctx context.Context, ts string) (Dataset, int, error) {
	rows := make(Dataset, len(s.cfg.Groups))
	failures := make([]bool, len(s.cfg.Groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, grp := range s.cfg.Groups {
		g.Go(func() error {
			obs, err := s.provider.Fetch(gctx, grp)
			// A cancelled run is not a missing price; nothing is recorded.
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				log.Warn().Err(err).Str("group", grp.Key()).Str("provider", s.provider.Name()).Msg("fetch failed")
				obs = missingObservation(grp)
				failures[i] = true
			}
			if !obs.Value.Present() {
				log.Info().Str("group", grp.Key()).Msg("no price available")
			}
			obs.Group = grp.Key()
			obs.TimestampRaw = ts
			rows[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	return rows, failed, nil
}

func missingObservation(g Group) Observation {
	return Observation{
		Group:      g.Key(),
		LocationID: NotAvailable,
		Store:      NotAvailable,
		ItemCode:   NotAvailable,
		Value:      Absent(),
	}
}

// Report renders the stored dataset without fetching.
func (s *Service) Report(ctx context.Context) (Document, Dataset, error) {
	ds, err := s.store.Load(ctx)
	if err != nil {
		return Document{}, nil, fmt.Errorf("load dataset: %w", err)
	}
	doc, err := Render(ds, s.ReportConfig())
	if err != nil {
		return Document{}, nil, err
	}
	return doc, ds, nil
}

// Trend aggregates a single configured group.
func (s *Service) Trend(ctx context.Context, group string) (Trend, error) {
	if !s.hasGroup(group) {
		return Trend{}, ErrUnknownGroup
	}
	ds, err := s.store.Load(ctx)
	if err != nil {
		return Trend{}, fmt.Errorf("load dataset: %w", err)
	}
	return Aggregate(ds, group, s.windowDays())
}

// GroupReport returns the rendered section and the raw trend of one group,
// both derived from a single load of the dataset.
func (s *Service) GroupReport(ctx context.Context, group string) (Section, Trend, error) {
	if !s.hasGroup(group) {
		return Section{}, Trend{}, ErrUnknownGroup
	}
	ds, err := s.store.Load(ctx)
	if err != nil {
		return Section{}, Trend{}, fmt.Errorf("load dataset: %w", err)
	}
	trend, err := Aggregate(ds, group, s.windowDays())
	if err != nil {
		return Section{}, Trend{}, err
	}
	doc, err := Render(ds, s.ReportConfig())
	if err != nil {
		return Section{}, Trend{}, err
	}
	section, _ := doc.Section(group)
	return section, trend, nil
}

func (s *Service) windowDays() int {
	if s.cfg.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return s.cfg.WindowDays
}

// History returns the valid observations of a group with an instant in
// [from, to], oldest first.
func (s *Service) History(ctx context.Context, group string, from, to time.Time) ([]ParsedObservation, error) {
	if !s.hasGroup(group) {
		return nil, ErrUnknownGroup
	}
	ds, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	var out []ParsedObservation
	for _, o := range ds {
		if o.Group != group {
			continue
		}
		p := Parse(o)
		if !p.Valid || p.Instant.Before(from) || p.Instant.After(to) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrNoObservations
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Instant.Before(out[j].Instant)
	})
	return out, nil
}

func (s *Service) hasGroup(name string) bool {
	for _, g := range s.cfg.Groups {
		if g.Key() == name {
			return true
		}
	}
	return false
}
