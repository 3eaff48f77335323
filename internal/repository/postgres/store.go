package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rikseotools/vence/internal/repository"
)

const recordsTable = "notification_records"

// Store keeps records in the notification_records table. Expired rows are
// hidden from reads and removed by Prune.
type Store struct {
	BaseRepository
	now func() time.Time
}

func NewStore(base BaseRepository) *Store {
	return &Store{BaseRepository: base, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key repository.Key) ([]byte, bool, error) {
	q := s.sb.Select("value").
		From(recordsTable).
		Where(sq.Eq{"record_key": key.String()}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": s.now().Unix()}})

	var value string
	err := s.getInto(ctx, &value, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *Store) Set(ctx context.Context, key repository.Key, value []byte, ttl time.Duration) error {
	var expires interface{}
	if ttl > 0 {
		expires = s.now().Add(ttl).Unix()
	}
	query, args, err := s.sb.Insert(recordsTable).
		Columns("record_key", "user_id", "value", "expires_at").
		Values(key.String(), key.UserID, string(value), expires).
		Suffix("ON CONFLICT (record_key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, user_id = EXCLUDED.user_id").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set record %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key repository.Key) error {
	query, args, err := s.sb.Delete(recordsTable).Where(sq.Eq{"record_key": key.String()}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	query, args, err := s.sb.Delete(recordsTable).Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete records of user %s: %w", userID, err)
	}
	return nil
}

// Prune removes rows that expired before the given time.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := s.sb.Delete(recordsTable).
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.LtOrEq{"expires_at": before.Unix()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}
	return res.RowsAffected()
}

var (
	_ repository.Store  = (*Store)(nil)
	_ repository.Pruner = (*Store)(nil)
)
