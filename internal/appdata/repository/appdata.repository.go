package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"appsync/config/database"
	"appsync/internal/appdata/model"
	"appsync/pkg/apperr"
	"appsync/pkg/logger"
	"appsync/pkg/timex"
)

const recordColumns = `id, user_id, type, title, content, created_at, updated_at, version`

// bumpExpr moves updated_at strictly forward even when the clock has not.
const bumpExpr = `GREATEST($%d, updated_at + interval '1 microsecond')`

type PostgresRepository struct {
	DB database.DBTX
}

func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (model.Record, error) {
	var r model.Record
	var title sql.NullString
	if err := s.Scan(&r.ID, &r.OwnerID, &r.Kind, &title, &r.Body, &r.CreatedAt, &r.UpdatedAt, &r.Version); err != nil {
		return r, err
	}
	if title.Valid {
		t := title.String
		r.Title = &t
	}
	r.CreatedAt = timex.Truncate(r.CreatedAt)
	r.UpdatedAt = timex.Truncate(r.UpdatedAt)
	return r, nil
}

func (r *PostgresRepository) queryRecords(ctx context.Context, op, query string, args ...any) ([]model.Record, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to %s: %v", op, err)
		return nil, apperr.Storage("failed to "+op, err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Storage("failed to "+op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("failed to "+op, err)
	}
	return records, nil
}

func (r *PostgresRepository) queryRecord(ctx context.Context, op, query string, args ...any) (*model.Record, error) {
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to %s: %v", op, err)
		return nil, apperr.Storage("failed to "+op, err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, ownerID int64, in model.CreateInput, now time.Time) (*model.Record, error) {
	query := `INSERT INTO app_data (user_id, type, title, content, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $5, nextval('app_data_version_seq'))
		RETURNING ` + recordColumns
	return r.queryRecord(ctx, "insert record", query, ownerID, in.Kind, nullString(in.Title), in.Body, now)
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*model.Record, error) {
	return r.queryRecord(ctx, fmt.Sprintf("get record %d", id),
		`SELECT `+recordColumns+` FROM app_data WHERE id = $1`, id)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Record, error) {
	return r.queryRecords(ctx, "list records",
		`SELECT `+recordColumns+` FROM app_data WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
}

func ownerFilter(ownerID int64, kind string) (string, []any) {
	if kind == "" {
		return `WHERE user_id = $1`, []any{ownerID}
	}
	return `WHERE user_id = $1 AND type = $2`, []any{ownerID, kind}
}

func (r *PostgresRepository) CountByOwner(ctx context.Context, ownerID int64, kind string) (int, error) {
	where, args := ownerFilter(ownerID, kind)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_data `+where, args...).Scan(&total); err != nil {
		logger.Sugar.Errorf("Failed to count records for user %d: %v", ownerID, err)
		return 0, apperr.Storage("failed to count records", err)
	}
	return total, nil
}

func (r *PostgresRepository) ListPage(ctx context.Context, ownerID int64, page model.Page) ([]model.Record, int, error) {
	total, err := r.CountByOwner(ctx, ownerID, page.Kind)
	if err != nil {
		return nil, 0, err
	}
	where, args := ownerFilter(ownerID, page.Kind)

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM app_data %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, n+1, n+2)
	args = append(args, page.Limit, page.Offset)
	records, err := r.queryRecords(ctx, "list records page", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *PostgresRepository) ListByOwnerAndKind(ctx context.Context, ownerID int64, kind string) ([]model.Record, error) {
	return r.queryRecords(ctx, "list records by type",
		`SELECT `+recordColumns+` FROM app_data WHERE user_id = $1 AND type = $2 ORDER BY created_at DESC, id DESC`,
		ownerID, kind)
}

func (r *PostgresRepository) ListSince(ctx context.Context, ownerID int64, cutoff time.Time) ([]model.Record, error) {
	return r.queryRecords(ctx, "list records since cursor",
		`SELECT `+recordColumns+` FROM app_data WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at DESC, id DESC`,
		ownerID, cutoff)
}

func (r *PostgresRepository) ListSinceVersion(ctx context.Context, ownerID int64, version int64) ([]model.Record, error) {
	return r.queryRecords(ctx, "list records since version",
		`SELECT `+recordColumns+` FROM app_data WHERE user_id = $1 AND version > $2 ORDER BY version DESC`,
		ownerID, version)
}

func (r *PostgresRepository) Update(ctx context.Context, id int64, patch model.Patch, now time.Time) (*model.Record, error) {
	var sets []string
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Kind.Present() {
		add("type", patch.Kind.Value)
	}
	if patch.Title.Set {
		if patch.Title.Null {
			add("title", nil)
		} else {
			add("title", patch.Title.Value)
		}
	}
	if patch.Body.Present() {
		add("content", patch.Body.Value)
	}
	args = append(args, now)
	sets = append(sets,
		"updated_at = "+fmt.Sprintf(bumpExpr, len(args)),
		"version = nextval('app_data_version_seq')")

	query := `UPDATE app_data SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + recordColumns
	return r.queryRecord(ctx, fmt.Sprintf("update record %d", id), query, args...)
}

func (r *PostgresRepository) TouchAllByOwner(ctx context.Context, ownerID int64, now time.Time) ([]model.Record, error) {
	query := `WITH touched AS (
			UPDATE app_data SET updated_at = ` + fmt.Sprintf(bumpExpr, 2) + `, version = nextval('app_data_version_seq')
			WHERE user_id = $1
			RETURNING ` + recordColumns + `
		)
		SELECT ` + recordColumns + ` FROM touched ORDER BY created_at DESC, id DESC`
	return r.queryRecords(ctx, "touch records", query, ownerID, now)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	n, err := r.exec(ctx, fmt.Sprintf("delete record %d", id), `DELETE FROM app_data WHERE id = $1`, id)
	return n > 0, err
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID int64) (int64, error) {
	return r.exec(ctx, "delete records of user", `DELETE FROM app_data WHERE user_id = $1`, ownerID)
}

func (r *PostgresRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "delete old records", `DELETE FROM app_data WHERE created_at < $1`, cutoff)
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to %s: %v", op, err)
		return 0, apperr.Storage("failed to "+op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("failed to "+op, err)
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
