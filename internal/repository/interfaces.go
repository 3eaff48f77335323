package repository

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rikseotools/vence/internal/model"
)

// ErrNotFound is returned by readers when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// RecordKind namespaces the records kept for one user.
type RecordKind string

const (
	KindCooldown  RecordKind = "cooldown"
	KindQuota     RecordKind = "quota"
	KindLifecycle RecordKind = "lifecycle"
	KindCategory  RecordKind = "category"
	KindActive    RecordKind = "active"
	KindDelivery  RecordKind = "delivery"
)

// KeyPrefix prefixes every stored key.
const KeyPrefix = "vence"

// Key addresses one record.
type Key struct {
	UserID string
	Kind   RecordKind
	Name   string
}

func (k Key) String() string {
	return UserPrefix(k.UserID) + string(k.Kind) + ":" + k.Name
}

// UserPrefix is the common prefix of every key owned by userID. The id is
// escaped so no user's prefix can match another user's keys.
func UserPrefix(userID string) string {
	return KeyPrefix + ":" + url.QueryEscape(userID) + ":"
}

// All repository interfaces in one file
type (
	// Store is a per-user key/value store with TTL. A ttl of zero keeps the
	// value until deleted.
	Store interface {
		Get(ctx context.Context, key Key) ([]byte, bool, error)
		Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
		Delete(ctx context.Context, key Key) error
		DeleteUser(ctx context.Context, userID string) error
	}

	// Pruner is implemented by stores that need explicit garbage collection.
	Pruner interface {
		Prune(ctx context.Context, before time.Time) (int64, error)
	}

	// AnalyticsReader exposes precomputed learning analytics.
	AnalyticsReader interface {
		ProblematicArticles(ctx context.Context, userID string) ([]model.ArticlePerformance, error)
		TestsCompleted(ctx context.Context, userID string) (int, error)
		Streak(ctx context.Context, userID string) (int, error)
		WeeklyTestStats(ctx context.Context, userID string, now time.Time) (model.WeeklyStats, error)
		Regressions(ctx context.Context, userID string) ([]model.LawRegression, error)
		StudyInsights(ctx context.Context, userID string) ([]model.StudyInsight, error)
	}

	DisputeRepository interface {
		DisputeUpdates(ctx context.Context, userID string) ([]model.DisputeUpdate, error)
		MarkDisputeRead(ctx context.Context, userID, disputeID string) error
	}

	SupportRepository interface {
		SupportMessages(ctx context.Context, userID string) ([]model.SupportMessage, error)
		MarkSupportMessageRead(ctx context.Context, userID, messageID string) error
	}

	UserDirectory interface {
		GetUser(ctx context.Context, id string) (*model.User, error)
	}
)
