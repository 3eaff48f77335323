package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
)

// analyticsRepository reads the tables refreshed by the analytics pipeline.
type analyticsRepository struct {
	BaseRepository
}

func NewAnalyticsRepository(base BaseRepository) repository.AnalyticsReader {
	return &analyticsRepository{base}
}

func (r *analyticsRepository) ProblematicArticles(ctx context.Context, userID string) ([]model.ArticlePerformance, error) {
	q := r.sb.Select("law_code", "law_name", "article_number", "accuracy", "attempts").
		From("user_article_stats").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("law_code", "accuracy", "article_number")

	var rows []model.ArticlePerformance
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list article stats: %w", err)
	}
	return rows, nil
}

type userStats struct {
	TestsCompleted int `db:"tests_completed"`
	CurrentStreak  int `db:"current_streak"`
}

func (r *analyticsRepository) userStats(ctx context.Context, userID string) (userStats, error) {
	q := r.sb.Select("tests_completed", "current_streak").
		From("user_stats").
		Where(sq.Eq{"user_id": userID})

	var stats userStats
	err := r.getInto(ctx, &stats, q)
	if errors.Is(err, sql.ErrNoRows) {
		return userStats{}, nil
	}
	if err != nil {
		return userStats{}, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}

func (r *analyticsRepository) TestsCompleted(ctx context.Context, userID string) (int, error) {
	stats, err := r.userStats(ctx, userID)
	return stats.TestsCompleted, err
}

func (r *analyticsRepository) Streak(ctx context.Context, userID string) (int, error) {
	stats, err := r.userStats(ctx, userID)
	return stats.CurrentStreak, err
}

func (r *analyticsRepository) WeeklyTestStats(ctx context.Context, userID string, now time.Time) (model.WeeklyStats, error) {
	week := model.ISOWeek(now)
	q := r.sb.Select("week", "tests_completed", "average_score").
		From("user_weekly_stats").
		Where(sq.Eq{"user_id": userID, "week": week})

	var stats model.WeeklyStats
	err := r.getInto(ctx, &stats, q)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeeklyStats{Week: week}, nil
	}
	if err != nil {
		return model.WeeklyStats{}, fmt.Errorf("failed to get weekly stats: %w", err)
	}
	return stats, nil
}

func (r *analyticsRepository) Regressions(ctx context.Context, userID string) ([]model.LawRegression, error) {
	q := r.sb.Select("law_code", "law_name", "previous_accuracy", "current_accuracy").
		From("user_law_regressions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("law_code")

	var rows []model.LawRegression
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list regressions: %w", err)
	}
	return rows, nil
}

func (r *analyticsRepository) StudyInsights(ctx context.Context, userID string) ([]model.StudyInsight, error) {
	q := r.sb.Select("type", "metric", "detail").
		From("user_study_insights").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("type")

	var rows []model.StudyInsight
	if err := r.selectInto(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list study insights: %w", err)
	}
	return rows, nil
}
