package filters

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memRepository is an in-memory Repository used by service and handler tests.
type memRepository struct {
	mu     sync.Mutex
	rows   map[int64]Filter
	nextID int64

	listCalls int
	listErr   error
	getErr    error
}

func newMemRepository() *memRepository {
	return &memRepository{rows: make(map[int64]Filter), nextID: 1}
}

func (m *memRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memRepository) ListActive(ctx context.Context, tenant string) ([]Filter, error) {
	return m.list(func(f Filter) bool { return f.Tenant == tenant })
}

func (m *memRepository) ListVisible(ctx context.Context, tenant, user string, roles []string) ([]Filter, error) {
	return m.list(func(f Filter) bool {
		if f.Tenant != tenant {
			return false
		}
		if f.CreatedBy == user || contains(f.Users, user) {
			return true
		}
		for _, r := range roles {
			if contains(f.Roles, r) {
				return true
			}
		}
		return len(f.Roles) == 0 && len(f.Users) == 0
	})
}

func (m *memRepository) list(match func(Filter) bool) ([]Filter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Filter
	for _, f := range m.rows {
		if f.IsActive() && match(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepository) Get(ctx context.Context, id int64) (Filter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return Filter{}, m.getErr
	}
	f, ok := m.rows[id]
	if !ok {
		return Filter{}, ErrNotFound
	}
	return f, nil
}

func (m *memRepository) GetForUpdate(ctx context.Context, id int64) (Filter, error) {
	return m.Get(ctx, id)
}

func (m *memRepository) Create(ctx context.Context, f Filter) (Filter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextID
	m.nextID++
	m.rows[f.ID] = f
	return f, nil
}

func (m *memRepository) Update(ctx context.Context, f Filter) (Filter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[f.ID]; !ok {
		return Filter{}, ErrNotFound
	}
	m.rows[f.ID] = f
	return f, nil
}

func (m *memRepository) SetStatus(ctx context.Context, id int64, status Status, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	f.ModifiedBy = by
	f.Modified = &at
	m.rows[id] = f
	return nil
}

func (m *memRepository) seed(f Filter) Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == 0 {
		f.ID = m.nextID
	}
	if f.ID >= m.nextID {
		m.nextID = f.ID + 1
	}
	if f.Status == "" {
		f.Status = StatusActive
	}
	m.rows[f.ID] = f
	return f
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) PublishFilterEvent(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}
