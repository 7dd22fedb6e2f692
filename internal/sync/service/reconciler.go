package service

import (
	"context"
	"fmt"
	"time"

	appdata "appsync/internal/appdata/model"
	"appsync/internal/sync/model"
	"appsync/pkg/apperr"
	"appsync/pkg/logger"
)

// Reconcile applies each item independently and in order. A failing item is
// recorded in Errors and never stops the ones after it; items already applied
// stay committed.
func (s *SyncService) Reconcile(ctx context.Context, ownerID int64, items []model.Item, now time.Time) model.ReconcileResult {
	res := model.ReconcileResult{
		Created: []appdata.Record{},
		Updated: []appdata.Record{},
		Errors:  []string{},
	}
	for _, item := range items {
		rec, created, msg := s.reconcileItem(ctx, ownerID, item, now)
		switch {
		case msg != "":
			res.Errors = append(res.Errors, msg)
		case created:
			res.Created = append(res.Created, *rec)
		default:
			res.Updated = append(res.Updated, *rec)
		}
	}
	return res
}

func (s *SyncService) reconcileItem(ctx context.Context, ownerID int64, item model.Item, now time.Time) (rec *appdata.Record, created bool, msg string) {
	defer func() {
		if p := recover(); p != nil {
			logger.Sugar.Errorf("Panic while reconciling item %s for user %d: %v", item.Ref(), ownerID, p)
			rec, created, msg = nil, false, fmt.Sprintf("error processing item %s: unexpected failure", item.Ref())
		}
	}()

	if item.ParseErr != nil {
		return nil, false, fmt.Sprintf("error processing item %s: invalid item", item.Ref())
	}

	if !item.HasID() {
		in, missing := item.CreateInput()
		if missing != "" {
			return nil, false, fmt.Sprintf("item %d: missing required field %s", item.Index, missing)
		}
		if err := in.Validate(); err != nil {
			return nil, false, itemError(item, err)
		}
		rec, err := s.Repo.Insert(ctx, ownerID, in, now)
		if err != nil {
			return nil, false, itemError(item, err)
		}
		return rec, true, ""
	}

	id := item.ID.Value
	existing, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, false, itemError(item, err)
	}
	if existing == nil {
		return nil, false, fmt.Sprintf("item %d not found", id)
	}
	if !appdata.IsOwnedBy(existing, ownerID) {
		return nil, false, fmt.Sprintf("item %d not owned by user", id)
	}

	patch := item.Patch()
	if err := patch.Validate(); err != nil {
		return nil, false, itemError(item, err)
	}
	updated, err := s.Repo.Update(ctx, id, patch, now)
	if err != nil {
		return nil, false, itemError(item, err)
	}
	if updated == nil {
		// Deleted between the read and the write.
		return nil, false, fmt.Sprintf("item %d not found", id)
	}
	return updated, false, ""
}

func itemError(item model.Item, err error) string {
	if apperr.KindOf(err) == apperr.KindStorage {
		logger.Sugar.Errorf("Storage failure on item %s: %v", item.Ref(), err)
	}
	return fmt.Sprintf("error processing item %s: %s", item.Ref(), apperr.Message(err))
}
