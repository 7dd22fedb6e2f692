package service

import (
	"context"

	appdata "appsync/internal/appdata/model"
	"appsync/internal/sync/model"
	"appsync/pkg/timex"
)

// DetectConflicts reports items whose server copy changed after the client's
// last-known updated_at. It never writes. Items without a usable id, or whose
// record is missing or owned by someone else, are skipped.
func (s *SyncService) DetectConflicts(ctx context.Context, ownerID int64, items []model.Item) (*model.ConflictReport, error) {
	conflicts := []model.Conflict{}
	for _, item := range items {
		if !item.HasID() {
			continue
		}
		server, err := s.Repo.Get(ctx, item.ID.Value)
		if err != nil {
			return nil, err
		}
		if !appdata.IsOwnedBy(server, ownerID) {
			continue
		}

		conflictType := ""
		clientTS, perr := timex.Parse(item.UpdatedAt.Value)
		switch {
		case !item.UpdatedAt.Present() || perr != nil:
			if !s.LenientTimestamps {
				conflictType = model.ConflictInvalidTimestamp
			}
		case server.UpdatedAt.After(clientTS):
			conflictType = model.ConflictTimestampMismatch
		}
		if conflictType == "" {
			continue
		}
		conflicts = append(conflicts, model.Conflict{
			ItemID:        server.ID,
			ServerVersion: *server,
			ClientVersion: item.Raw,
			ConflictType:  conflictType,
		})
	}
	return &model.ConflictReport{
		Conflicts:     conflicts,
		ConflictCount: len(conflicts),
		HasConflicts:  len(conflicts) > 0,
	}, nil
}
