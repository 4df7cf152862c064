package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/repository"
)

func strPtr(s string) *string { return &s }

type fakeQueue struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.bodies = append(q.bodies, body)
	return "1751364000000-0", nil
}

type fakeDirectory struct {
	operators []domain.Operator
	err       error
	calls     int
}

func (d *fakeDirectory) ListEligible(_ context.Context, _ string, limit int) ([]domain.Operator, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.operators) > limit {
		return d.operators[:limit], nil
	}
	return d.operators, nil
}

// fakeStore mirrors the insert-if-absent semantics of the Postgres store.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*domain.Concern
	upserts  int
	upsertFn func()
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*domain.Concern{}}
}

func (s *fakeStore) Upsert(_ context.Context, c *domain.Concern) (*domain.Concern, bool, error) {
	if s.upsertFn != nil {
		s.upsertFn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return nil, false, s.err
	}
	if existing, ok := s.records[c.ID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *c
	cp.CreatedAt = time.Now().UTC()
	s.records[c.ID] = &cp
	out := cp
	return &out, true, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*domain.Concern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.records[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrConcernNotFound
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, event domain.NotificationEvent, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) published() []domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.NotificationEvent(nil), n.events...)
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []domain.NotificationEvent
	err    error
	onSend func(domain.NotificationEvent)
}

func (f *fakeSender) Send(_ context.Context, event domain.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(event)
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, event)
	return nil
}

type fixedPicker int

func (p fixedPicker) Pick(int) int { return int(p) }

var errUnavailable = errors.New("connection refused")
