package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	appdata "appsync/internal/appdata/model"
	"appsync/internal/appdata/repository"
	"appsync/internal/sync/model"
	"appsync/pkg/apperr"
	"appsync/pkg/events"
	"appsync/pkg/logger"
	"appsync/pkg/timex"
)

const DefaultBatchSize = 100

type SyncService struct {
	Repo   repository.Store
	Events events.Publisher
	Now    func() time.Time

	// BatchSize caps the items accepted by one push. Zero disables the cap.
	BatchSize int
	// LenientTimestamps skips conflict items with a missing or unparsable
	// client timestamp instead of reporting them.
	LenientTimestamps bool
}

func NewSyncService(repo repository.Store, pub events.Publisher) *SyncService {
	if pub == nil {
		pub = events.Nop
	}
	return &SyncService{Repo: repo, Events: pub, Now: timex.Now, BatchSize: DefaultBatchSize}
}

// Pull returns the owner's records changed after the cursor. sinceVersion wins
// over lastSync when it is a valid integer; an absent or unparsable cursor
// returns everything. The returned timestamp is taken before the read and is
// the next cursor.
func (s *SyncService) Pull(ctx context.Context, ownerID int64, lastSync, sinceVersion string) (*model.PullResult, error) {
	serverTime := s.Now()

	var (
		records []appdata.Record
		err     error
	)
	if v, perr := strconv.ParseInt(strings.TrimSpace(sinceVersion), 10, 64); perr == nil && v >= 0 {
		records, err = s.Repo.ListSinceVersion(ctx, ownerID, v)
	} else if cutoff, perr := timex.Parse(lastSync); perr == nil {
		records, err = s.Repo.ListSince(ctx, ownerID, cutoff)
	} else {
		if lastSync != "" {
			logger.Sugar.Warnf("User %d sent unparsable last_sync %q, returning all records", ownerID, lastSync)
		}
		records, err = s.Repo.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}

	logger.Sugar.Infof("User %d requested sync data: %d records", ownerID, len(records))
	return &model.PullResult{
		Data:      records,
		Timestamp: timex.Format(serverTime),
		Count:     len(records),
		UserID:    ownerID,
	}, nil
}

// Push reconciles a client batch and notifies the owner's other sessions of
// whatever was applied.
func (s *SyncService) Push(ctx context.Context, ownerID int64, session string, items []model.Item) (*model.PushResult, error) {
	if s.BatchSize > 0 && len(items) > s.BatchSize {
		return nil, apperr.Validation(fmt.Sprintf("batch of %d items exceeds the limit of %d", len(items), s.BatchSize))
	}

	now := s.Now()
	res := s.Reconcile(ctx, ownerID, items, now)

	applied := make([]appdata.Record, 0, len(res.Updated)+len(res.Created))
	applied = append(applied, res.Updated...)
	applied = append(applied, res.Created...)
	ts := timex.Format(now)

	if len(applied) > 0 {
		s.Events.Publish(ownerID, events.DataUpdated, model.DataUpdatedNotice{UserID: ownerID, Data: applied, Timestamp: ts}, session)
	}
	logger.Sugar.Infof("Sync completed for user %d: %d created, %d updated, %d errors",
		ownerID, len(res.Created), len(res.Updated), len(res.Errors))

	return &model.PushResult{
		UpdatedData:  applied,
		CreatedCount: len(res.Created),
		UpdatedCount: len(res.Updated),
		Errors:       res.Errors,
		Timestamp:    ts,
	}, nil
}

// ForceFullResync bumps updated_at on every owned record so any older cursor
// sees all of them again, and tells the other sessions to re-pull.
func (s *SyncService) ForceFullResync(ctx context.Context, ownerID int64, session string) (*model.ForceResult, error) {
	now := s.Now()
	records, err := s.Repo.TouchAllByOwner(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	ts := timex.Format(now)

	s.Events.Publish(ownerID, events.ForceSyncCompleted, model.ForceSyncNotice{UserID: ownerID, Timestamp: ts, TotalSynced: len(records)}, session)
	logger.Sugar.Infof("Force full sync completed for user %d: %d items", ownerID, len(records))

	return &model.ForceResult{
		Data:        records,
		TotalSynced: len(records),
		SyncType:    model.SyncTypeForceFull,
		Timestamp:   ts,
	}, nil
}
