package service

import (
	"context"
	"time"

	"appsync/internal/sync/model"
	"appsync/pkg/timex"
)

// Status summarises the owner's records in a single scan.
func (s *SyncService) Status(ctx context.Context, ownerID int64) (*model.Status, error) {
	records, err := s.Repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	hist := make(map[string]int)
	var last *time.Time
	for i := range records {
		r := &records[i]
		hist[r.Kind]++
		if last == nil || r.UpdatedAt.After(*last) {
			last = &r.UpdatedAt
		}
	}

	st := &model.Status{
		UserID:         ownerID,
		TotalItems:     len(records),
		LastActivity:   timex.FormatPtr(last),
		TypeStatistics: hist,
		SyncStatus:     model.StatusEmpty,
		Timestamp:      timex.Format(s.Now()),
	}
	if len(records) > 0 {
		st.SyncStatus = model.StatusActive
	}
	return st, nil
}
