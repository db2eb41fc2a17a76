package prices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProvider is a testify mock of Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Fetch(ctx context.Context, g Group) (Observation, error) {
	args := m.Called(ctx, g)
	return args.Get(0).(Observation), args.Error(1)
}

// sliceStore keeps the dataset in memory for service tests.
type sliceStore struct {
	mu      sync.Mutex
	rows    Dataset
	saves   int
	loads   int
	loadErr error
}

func (s *sliceStore) Load(context.Context) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append(Dataset(nil), s.rows...), nil
}

func (s *sliceStore) Save(_ context.Context, ds Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(Dataset(nil), ds...)
	s.saves++
	return nil
}

type recordingPublisher struct {
	docs []Document
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, doc Document, _ Dataset) error {
	p.docs = append(p.docs, doc)
	return p.err
}

type recordingObserver struct {
	results []CollectResult
	errs    []error
}

func (o *recordingObserver) ObserveCollection(r CollectResult, _ time.Duration, err error) {
	o.results = append(o.results, r)
	o.errs = append(o.errs, err)
}

var (
	nashville = Group{Name: "Nashville, TN", ZipCode: "37203"}
	atlanta   = Group{Name: "Atlanta, GA", ZipCode: "30303"}
	knoxville = Group{Name: "Knoxville, TN", ZipCode: "37902"}
)

func newTestService(st Store, p Provider, opts ...Option) *Service {
	cfg := ServiceConfig{
		Groups:      []Group{nashville, atlanta, knoxville},
		WindowDays:  7,
		Concurrency: 2,
	}
	opts = append([]Option{WithClock(func() time.Time { return refTime })}, opts...)
	return NewService(st, p, cfg, opts...)
}

func TestServiceCollectAppendsOneRowPerGroup(t *testing.T) {
	ctx := context.Background()
	prior := obsAt(nashville.Name, 2.00, 3)
	st := &sliceStore{rows: Dataset{prior}}

	provider := &MockProvider{}
	provider.On("Fetch", mock.Anything, nashville).
		Return(Observation{LocationID: "026", Store: "Kroger", ItemCode: "0001111060903", Value: Some(2.40)}, nil)
	provider.On("Fetch", mock.Anything, atlanta).
		Return(Observation{LocationID: NotAvailable, Store: NotAvailable, ItemCode: NotAvailable, Value: Absent()}, nil)
	provider.On("Fetch", mock.Anything, knoxville).
		Return(Observation{}, errors.New("upstream down"))

	pub := &recordingPublisher{}
	obs := &recordingObserver{}
	svc := newTestService(st, provider, WithPublishers(pub), WithObserver(obs))

	result, err := svc.Collect(ctx)
	require.NoError(t, err)
	provider.AssertExpectations(t)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "2026-10-15 12:00:00", result.Timestamp)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 1, result.Priced)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.TotalRows)

	require.Len(t, st.rows, 4)
	assert.Equal(t, prior, st.rows[0], "existing history is preserved")
	assert.Equal(t, nashville.Name, st.rows[1].Group)
	assert.Equal(t, atlanta.Name, st.rows[2].Group)
	assert.Equal(t, knoxville.Name, st.rows[3].Group)
	assert.Equal(t, NotAvailable, st.rows[3].Store)
	assert.False(t, st.rows[3].Value.Present())
	for _, row := range st.rows[1:] {
		assert.Equal(t, result.Timestamp, row.TimestampRaw)
	}

	require.Len(t, pub.docs, 1)
	section, ok := pub.docs[0].Section(nashville.Name)
	require.True(t, ok)
	assert.Equal(t, StatusOK, section.Status)
	assert.Equal(t, "2.40", section.CurrentPrice)
	assert.Equal(t, "+0.40", section.Change)

	require.Len(t, obs.results, 1)
	assert.NoError(t, obs.errs[0])
}

func TestServiceCollectCancelledRunStoresNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prior := obsAt(nashville.Name, 2.00, 3)
	st := &sliceStore{rows: Dataset{prior}}

	// The provider sees the deadline mid-walk and gives up without a price.
	provider := &MockProvider{}
	provider.On("Fetch", mock.Anything, nashville).
		Run(func(mock.Arguments) { cancel() }).
		Return(Observation{LocationID: NotAvailable, Store: NotAvailable, ItemCode: NotAvailable, Value: Absent()}, nil)
	provider.On("Fetch", mock.Anything, mock.Anything).
		Return(Observation{Value: Some(1)}, nil).Maybe()

	pub := &recordingPublisher{}
	obs := &recordingObserver{}
	svc := newTestService(st, provider, WithPublishers(pub), WithObserver(obs))

	_, err := svc.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, st.saves)
	assert.Equal(t, Dataset{prior}, st.rows)
	assert.Empty(t, pub.docs)
	require.Len(t, obs.errs, 1)
	assert.ErrorIs(t, obs.errs[0], context.Canceled)
}

func TestServiceCollectReportsPublisherErrors(t *testing.T) {
	provider := &MockProvider{}
	provider.On("Fetch", mock.Anything, mock.Anything).Return(Observation{Value: Some(1)}, nil)

	failing := &recordingPublisher{err: errors.New("disk full")}
	ok := &recordingPublisher{}
	st := &sliceStore{}
	svc := newTestService(st, provider, WithPublishers(failing, ok))

	_, err := svc.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.docs, 1, "remaining publishers still run")
	assert.Equal(t, 1, st.saves)
}

func TestServiceCollectWithoutProvider(t *testing.T) {
	svc := newTestService(&sliceStore{}, nil)
	_, err := svc.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestServiceCollectLoadFailure(t *testing.T) {
	provider := &MockProvider{}
	provider.On("Fetch", mock.Anything, mock.Anything).Return(Observation{Value: Some(1)}, nil)
	st := &sliceStore{loadErr: errors.New("corrupt")}

	_, err := newTestService(st, provider).Collect(context.Background())
	require.Error(t, err)
	assert.Zero(t, st.saves)
}

func TestServiceTrendAndReport(t *testing.T) {
	st := &sliceStore{rows: Dataset{
		obsAt(nashville.Name, 2.00, 2),
		obsAt(nashville.Name, 2.50, 0),
	}}
	svc := newTestService(st, nil)
	ctx := context.Background()

	trend, err := svc.Trend(ctx, nashville.Name)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, *trend.Delta, 1e-9)

	_, err = svc.Trend(ctx, "Paris")
	assert.ErrorIs(t, err, ErrUnknownGroup)

	doc, ds, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.Len(t, ds, 2)
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, StatusNoData, doc.Sections[1].Status)
}

func TestServiceGroupReportLoadsOnce(t *testing.T) {
	st := &sliceStore{rows: Dataset{
		obsAt(nashville.Name, 2.00, 2),
		obsAt(nashville.Name, 2.50, 0),
	}}
	svc := newTestService(st, nil)
	ctx := context.Background()

	section, trend, err := svc.GroupReport(ctx, nashville.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, st.loads)
	assert.Equal(t, nashville.Name, section.Group)
	assert.Equal(t, "2.50", section.CurrentPrice)
	assert.Equal(t, "+0.50", section.Change)
	assert.InDelta(t, 0.50, *trend.Delta, 1e-9)

	_, _, err = svc.GroupReport(ctx, "Paris")
	assert.ErrorIs(t, err, ErrUnknownGroup)
	assert.Equal(t, 1, st.loads)
}

func TestServiceHistory(t *testing.T) {
	absent := obsAt(nashville.Name, 0, 1)
	absent.Value = Absent()
	st := &sliceStore{rows: Dataset{
		obsAt(nashville.Name, 2.50, 0),
		obsAt(nashville.Name, 2.00, 5),
		absent,
		obsAt(nashville.Name, 2.25, 2),
		obsAt(atlanta.Name, 3.00, 2),
	}}
	svc := newTestService(st, nil)
	ctx := context.Background()

	from := refTime.Add(-3 * 24 * time.Hour)
	history, err := svc.History(ctx, nashville.Name, from, refTime)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, Some(2.25), history[0].Value)
	assert.Equal(t, Some(2.50), history[1].Value)
	assert.True(t, history[0].Instant.Before(history[1].Instant))

	_, err = svc.History(ctx, knoxville.Name, from, refTime)
	assert.ErrorIs(t, err, ErrNoObservations)

	_, err = svc.History(ctx, "Paris", from, refTime)
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestServiceReportConfig(t *testing.T) {
	svc := NewService(&sliceStore{}, nil, ServiceConfig{
		Groups:           []Group{atlanta, nashville},
		DecimalPrecision: 3,
		Title:            "Weekly",
	})

	cfg := svc.ReportConfig()
	assert.Equal(t, []string{atlanta.Name, nashville.Name}, cfg.Groups)
	assert.Equal(t, int32(3), cfg.DecimalPrecision)
	assert.Equal(t, "Weekly", cfg.Title)

	groups := svc.Groups()
	groups[0].Name = "changed"
	assert.Equal(t, atlanta.Name, svc.Groups()[0].Name)
}
