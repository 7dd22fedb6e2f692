package service

import (
	"context"
	"fmt"
	"time"

	"appsync/internal/appdata/model"
	"appsync/internal/appdata/repository"
	"appsync/pkg/apperr"
	"appsync/pkg/events"
	"appsync/pkg/logger"
	"appsync/pkg/response"
	"appsync/pkg/timex"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type AppDataService struct {
	Repo   repository.Store
	Events events.Publisher
	Now    func() time.Time
}

func NewAppDataService(repo repository.Store, pub events.Publisher) *AppDataService {
	if pub == nil {
		pub = events.Nop
	}
	return &AppDataService{Repo: repo, Events: pub, Now: timex.Now}
}

type ListResult struct {
	Items      []model.Record      `json:"items"`
	Pagination response.Pagination `json:"pagination"`
}

type CleanupResult struct {
	DeletedCount int64  `json:"deleted_count"`
	CutoffDate   string `json:"cutoff_date"`
}

type changeNotice struct {
	ID     int64   `json:"id"`
	Kind   string  `json:"type"`
	Title  *string `json:"title"`
	UserID int64   `json:"user_id"`
}

type deleteNotice struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

func (s *AppDataService) List(ctx context.Context, ownerID int64, page, perPage int, kind string) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)

	items, total, err := s.Repo.ListPage(ctx, ownerID, model.Page{Kind: kind, Limit: perPage, Offset: (page - 1) * perPage})
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Pagination: response.NewPagination(page, perPage, total)}, nil
}

// owned loads id and hides records of other owners behind not-found.
func (s *AppDataService) owned(ctx context.Context, ownerID, id int64) (*model.Record, error) {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.IsOwnedBy(rec, ownerID) {
		return nil, apperr.NotFound("data not found")
	}
	return rec, nil
}

func (s *AppDataService) Get(ctx context.Context, ownerID, id int64) (*model.Record, error) {
	return s.owned(ctx, ownerID, id)
}

func (s *AppDataService) ListByKind(ctx context.Context, ownerID int64, kind string) ([]model.Record, error) {
	return s.Repo.ListByOwnerAndKind(ctx, ownerID, kind)
}

func (s *AppDataService) Create(ctx context.Context, ownerID int64, in model.CreateInput, session string) (*model.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.Repo.Insert(ctx, ownerID, in, s.Now())
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("New data created by user %d: %d", ownerID, rec.ID)
	s.Events.Publish(ownerID, events.DataCreated, changeNotice{ID: rec.ID, Kind: rec.Kind, Title: rec.Title, UserID: ownerID}, session)
	return rec, nil
}

func (s *AppDataService) Update(ctx context.Context, ownerID, id int64, patch model.Patch, session string) (*model.Record, error) {
	if patch.Empty() {
		return nil, apperr.Validation("no fields to update")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	rec, err := s.Repo.Update(ctx, id, patch, s.Now())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("data not found")
	}
	logger.Sugar.Infof("Data updated by user %d: %d", ownerID, id)
	s.Events.Publish(ownerID, events.DataUpdated, changeNotice{ID: rec.ID, Kind: rec.Kind, Title: rec.Title, UserID: ownerID}, session)
	return rec, nil
}

func (s *AppDataService) Delete(ctx context.Context, ownerID, id int64, session string) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	ok, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("data not found")
	}
	logger.Sugar.Infof("Data deleted by user %d: %d", ownerID, id)
	s.Events.Publish(ownerID, events.DataDeleted, deleteNotice{ID: id, UserID: ownerID}, session)
	return nil
}

// CleanupOlderThan removes every record created more than days ago.
func (s *AppDataService) CleanupOlderThan(ctx context.Context, days int) (*CleanupResult, error) {
	if days < 1 {
		return nil, apperr.Validation("days must be positive")
	}
	cutoff := s.Now().AddDate(0, 0, -days)
	n, err := s.Repo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	logger.Sugar.Infof("Cleaned up %d old records created before %s", n, timex.Format(cutoff))
	return &CleanupResult{DeletedCount: n, CutoffDate: timex.Format(cutoff)}, nil
}

// RetentionWorker runs CleanupOlderThan every interval until ctx is done.
func (s *AppDataService) RetentionWorker(ctx context.Context, days int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupOlderThan(ctx, days); err != nil {
				logger.Sugar.Errorf("Retention cleanup failed: %v", err)
			}
		}
	}
}
