package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
)

type disputeRepository struct {
	BaseRepository
}

func NewDisputeRepository(base BaseRepository) repository.DisputeRepository {
	return &disputeRepository{base}
}

// DisputeUpdates lists unread disputes that reached a user-visible state.
func (r *disputeRepository) DisputeUpdates(ctx context.Context, userID string) ([]model.DisputeUpdate, error) {
	q := r.sb.Select("id", "status", "law_code", "article", "question_id", "resolved_at", "is_read").
		From("question_disputes").
		Where(sq.Eq{
			"user_id": userID,
			"is_read": false,
			"status":  []string{string(model.DisputeResolved), string(model.DisputeRejected), string(model.DisputeAppealed)},
		}).
		OrderBy("resolved_at DESC", "id")

	var rows []model.DisputeUpdate
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list dispute updates: %w", err)
	}
	return rows, nil
}

func (r *disputeRepository) MarkDisputeRead(ctx context.Context, userID, disputeID string) error {
	return markRead(ctx, r.BaseRepository, "question_disputes", userID, disputeID)
}

type supportRepository struct {
	BaseRepository
}

func NewSupportRepository(base BaseRepository) repository.SupportRepository {
	return &supportRepository{base}
}

func (r *supportRepository) SupportMessages(ctx context.Context, userID string) ([]model.SupportMessage, error) {
	q := r.sb.Select("id", "conversation_id", "kind", "subject", "body", "created_at", "is_read").
		From("support_messages").
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		OrderBy("created_at DESC", "id")

	var rows []model.SupportMessage
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list support messages: %w", err)
	}
	return rows, nil
}

func (r *supportRepository) MarkSupportMessageRead(ctx context.Context, userID, messageID string) error {
	return markRead(ctx, r.BaseRepository, "support_messages", userID, messageID)
}

func markRead(ctx context.Context, base BaseRepository, table, userID, id string) error {
	query, args, err := base.sb.Update(table).
		Set("is_read", true).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := base.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark %s read: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type userDirectory struct {
	BaseRepository
}

func NewUserDirectory(base BaseRepository) repository.UserDirectory {
	return &userDirectory{base}
}

func (r *userDirectory) GetUser(ctx context.Context, id string) (*model.User, error) {
	q := r.sb.Select("id", "email", "name", "push_enabled").
		From("user_profiles").
		Where(sq.Eq{"id": id})

	var user model.User
	err := r.getInto(ctx, &user, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
