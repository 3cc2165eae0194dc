package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
)

type fakeMetrics struct {
	mu        sync.Mutex
	events    map[string]int
	errors    map[string]int
	decisions map[string]int
	positions []models.Position
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		events:    map[string]int{},
		errors:    map[string]int{},
		decisions: map[string]int{},
	}
}

func (m *fakeMetrics) RecordEvent(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[kind]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64) {}
func (m *fakeMetrics) RecordIterations(string, int) {}

func (m *fakeMetrics) RecordDecision(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[action]++
}

func (m *fakeMetrics) RecordPosition(cash, asset, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, models.Position{Cash: cash, Asset: asset})
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type fakePublisher struct {
	mu      sync.Mutex
	intents []*models.TradeIntent
	err     error
}

func (p *fakePublisher) PublishIntent(_ context.Context, in *models.TradeIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.intents = append(p.intents, in)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeCandles struct {
	candles []models.Candle
	calls   int
	err     error
}

func (f *fakeCandles) GetCandles(_ context.Context, _ string, _, _ time.Time, _ drepo.Granularity) ([]models.Candle, error) {
	f.calls++
	return f.candles, f.err
}

type fakeModelStore struct {
	mu     sync.Mutex
	saved  map[string]*models.TrainedModel
	locked bool
}

func newFakeModelStore() *fakeModelStore {
	return &fakeModelStore{saved: map[string]*models.TrainedModel{}}
}

func (s *fakeModelStore) Save(_ context.Context, m *models.TrainedModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[m.Product] = m
	return nil
}

func (s *fakeModelStore) Load(_ context.Context, product string) (*models.TrainedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[product], nil
}

func (s *fakeModelStore) Lock(context.Context, string) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, false, nil
	}
	s.locked = true
	return func() {
		s.mu.Lock()
		s.locked = false
		s.mu.Unlock()
	}, true, nil
}

// wavyTimeline is a deterministic drifting sine with no flat windows.
func wavyTimeline(n int) []models.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 5*math.Sin(float64(i)*0.5) + 0.1*float64(i)
		out[i] = models.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1 + float64(i%7),
		}
	}
	return out
}
