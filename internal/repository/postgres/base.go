package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewBaseRepository picks the placeholder style from the driver name.
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	var format sq.PlaceholderFormat = sq.Dollar
	if db.DriverName() == DriverSQLite {
		format = sq.Question
	}
	return BaseRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

func (r *BaseRepository) selectInto(ctx context.Context, dest interface{}, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}

func (r *BaseRepository) getInto(ctx context.Context, dest interface{}, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return r.db.GetContext(ctx, dest, query, args...)
}
