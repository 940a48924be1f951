package filters

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taskdesk/taskdesk/internal/auth"
)

// EventPublisher receives filter change notifications.
type EventPublisher interface {
	PublishFilterEvent(ctx context.Context, event Event) error
}

// Service owns filter business rules: tenant scoping, ownership checks,
// soft deletion, cache invalidation and change events.
type Service struct {
	repo   Repository
	cache  *Cache
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. cache and events may be nil.
func NewService(repo Repository, cache *Cache, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, events: events, logger: logger, now: time.Now}
}

// ListFilters returns every active filter of the caller's tenant.
func (s *Service) ListFilters(ctx context.Context, caller auth.Principal) ([]Filter, error) {
	key, err := s.cache.AllKey(ctx, caller.Tenant)
	if err != nil {
		s.logger.Warn("filter cache key", slog.Any("error", err))
		return s.repo.ListActive(ctx, caller.Tenant)
	}
	return s.cache.FetchList(ctx, key, func(ctx context.Context) ([]Filter, error) {
		return s.repo.ListActive(ctx, caller.Tenant)
	})
}

// ListUserFilters returns the active filters the caller may see.
func (s *Service) ListUserFilters(ctx context.Context, caller auth.Principal) ([]Filter, error) {
	load := func(ctx context.Context) ([]Filter, error) {
		return s.repo.ListVisible(ctx, caller.Tenant, caller.UserName, caller.Roles)
	}
	key, err := s.cache.UserKey(ctx, caller.Tenant, caller.UserName, caller.Roles)
	if err != nil {
		s.logger.Warn("filter cache key", slog.Any("error", err))
		return load(ctx)
	}
	return s.cache.FetchList(ctx, key, load)
}

// GetFilterByID returns an active filter of the caller's tenant.
func (s *Service) GetFilterByID(ctx context.Context, caller auth.Principal, id int64) (Filter, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return Filter{}, s.notFound(err)
	}
	if !f.IsActive() {
		return Filter{}, NewFilterNotFound()
	}
	if !canRead(caller, f) {
		return Filter{}, ErrPermission
	}
	return f, nil
}

// CreateFilter stores a new active filter owned by the caller.
func (s *Service) CreateFilter(ctx context.Context, caller auth.Principal, in FilterInput) (Filter, error) {
	f := Filter{
		Status:    StatusActive,
		Tenant:    caller.Tenant,
		Created:   s.now().UTC(),
		CreatedBy: caller.UserName,
	}
	applyInput(&f, in)

	created, err := s.repo.Create(ctx, f)
	if err != nil {
		return Filter{}, err
	}
	s.afterWrite(ctx, caller, created.ID, ActionCreated)
	return created, nil
}

// UpdateFilter replaces the business fields of an active filter owned by the caller.
func (s *Service) UpdateFilter(ctx context.Context, caller auth.Principal, id int64, in FilterInput) (Filter, error) {
	var updated Filter
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return s.notFound(err)
		}
		if !current.IsActive() {
			return NewFilterNotFound()
		}
		if !canModify(caller, current) {
			return ErrPermission
		}
		applyInput(&current, in)
		now := s.now().UTC()
		current.Modified = &now
		current.ModifiedBy = caller.UserName

		updated, err = repo.Update(ctx, current)
		return s.notFound(err)
	})
	if err != nil {
		return Filter{}, err
	}
	s.afterWrite(ctx, caller, id, ActionUpdated)
	return updated, nil
}

// MarkInactive soft deletes a filter owned by the caller. Deactivating an
// inactive filter succeeds without touching it.
func (s *Service) MarkInactive(ctx context.Context, caller auth.Principal, id int64) error {
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return s.notFound(err)
		}
		if !canModify(caller, current) {
			return ErrPermission
		}
		if !current.IsActive() {
			return nil
		}
		changed = true
		return s.notFound(repo.SetStatus(ctx, id, StatusInactive, caller.UserName, s.now().UTC()))
	})
	if err != nil {
		return err
	}
	if changed {
		s.afterWrite(ctx, caller, id, ActionDeactivated)
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, caller auth.Principal, id int64, action string) {
	if err := s.cache.Bump(ctx, caller.Tenant); err != nil {
		s.logger.Warn("bump filter cache", slog.Int64("filter_id", id), slog.Any("error", err))
	}
	if s.events == nil {
		return
	}
	event := Event{Action: action, FilterID: id, Actor: caller.UserName, Tenant: caller.Tenant, At: s.now().UTC()}
	if err := s.events.PublishFilterEvent(ctx, event); err != nil {
		s.logger.Warn("publish filter event",
			slog.String("action", action),
			slog.Int64("filter_id", id),
			slog.Any("error", err))
	}
}

func (s *Service) notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return NewFilterNotFound()
	}
	return err
}

func applyInput(f *Filter, in FilterInput) {
	f.Name = in.Name
	f.Description = in.Description
	f.Criteria = in.Criteria
	f.Variables = in.Variables
	f.Properties = in.Properties
	f.Roles = in.Roles
	f.Users = in.Users
}

func canRead(caller auth.Principal, f Filter) bool {
	return f.Tenant == caller.Tenant
}

func canModify(caller auth.Principal, f Filter) bool {
	return canRead(caller, f) && f.CreatedBy == caller.UserName
}
