package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/t77yq/ratewatch/internal/model"
	"github.com/t77yq/ratewatch/internal/provider"
	"github.com/t77yq/ratewatch/internal/storage"
)

// MemoryAlertStore is an in-memory AlertStore for tests.
type MemoryAlertStore struct {
	mu     sync.Mutex
	alerts map[string]*model.Alert

	// LoadErr and SaveErr, when set, are returned by the corresponding
	// operations to simulate persistence failures.
	LoadErr error
	SaveErr error

	// SaveCount tracks the number of successful saves.
	SaveCount int
}

// NewMemoryAlertStore creates an empty in-memory store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*model.Alert)}
}

// LoadAll implements storage.AlertStore.
func (s *MemoryAlertStore) LoadAll(ctx context.Context) ([]*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	all := make([]*model.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		copied := *alert
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

// Get implements storage.AlertStore.
func (s *MemoryAlertStore) Get(ctx context.Context, id string) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, storage.ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

// Save implements storage.AlertStore.
func (s *MemoryAlertStore) Save(ctx context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}

	copied := *alert
	s.alerts[alert.ID] = &copied
	s.SaveCount++
	return nil
}

// Delete implements storage.AlertStore.
func (s *MemoryAlertStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.alerts, id)
	return nil
}

// CountTriggered implements storage.AlertStore.
func (s *MemoryAlertStore) CountTriggered(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, alert := range s.alerts {
		if alert.Status == model.AlertStatusTriggered {
			count++
		}
	}
	return count, nil
}

// StubRateProvider serves canned quotes keyed by "BASE/TARGET" for currency
// lookups and by crypto id for price lookups. Keys mapped to an error fail
// the fetch.
type StubRateProvider struct {
	mu     sync.Mutex
	quotes map[string]provider.Quote
	errs   map[string]error

	// Fetched records lookup keys in call order.
	Fetched []string

	// FetchHook, when set, runs at the start of every fetch. Tests use it
	// to block a pass mid-flight or cancel a context between fetches.
	FetchHook func()
}

// NewStubRateProvider creates an empty stub provider.
func NewStubRateProvider() *StubRateProvider {
	return &StubRateProvider{
		quotes: make(map[string]provider.Quote),
		errs:   make(map[string]error),
	}
}

// SetQuote registers a canned quote for a lookup key.
func (p *StubRateProvider) SetQuote(key string, quote provider.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[key] = quote
}

// SetError registers a canned failure for a lookup key.
func (p *StubRateProvider) SetError(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[key] = err
}

// Name implements provider.CryptoPriceProvider.
func (p *StubRateProvider) Name() string { return "stub" }

// FetchRate implements provider.CurrencyRateProvider.
func (p *StubRateProvider) FetchRate(ctx context.Context, base, target string) (provider.Quote, error) {
	return p.fetch(ctx, base+"/"+target)
}

// FetchPrice implements provider.CryptoPriceProvider.
func (p *StubRateProvider) FetchPrice(ctx context.Context, id string) (provider.Quote, error) {
	return p.fetch(ctx, id)
}

func (p *StubRateProvider) fetch(ctx context.Context, key string) (provider.Quote, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quote{}, err
	}

	if p.FetchHook != nil {
		p.FetchHook()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Fetched = append(p.Fetched, key)
	if err, ok := p.errs[key]; ok {
		return provider.Quote{}, err
	}
	if quote, ok := p.quotes[key]; ok {
		return quote, nil
	}
	return provider.Quote{}, provider.ErrNotFound
}
