package model

import (
	"sort"
	"strings"
	"time"
)

// NotificationType is the closed set of notification kinds the engine emits.
type NotificationType string

const (
	TypeLevelRegression      NotificationType = "level_regression"
	TypeProblematicArticles  NotificationType = "problematic_articles"
	TypeSupportReply         NotificationType = "support_reply"
	TypeSystemMessage        NotificationType = "system_message"
	TypeAchievementStreak    NotificationType = "achievement_streak"
	TypeAchievementScore     NotificationType = "achievement_score"
	TypeAchievementWeekly    NotificationType = "achievement_weekly_tests"
	TypeMotivationAccuracy   NotificationType = "motivation_accuracy_trend"
	TypeMotivationConsistent NotificationType = "motivation_study_consistency"
	TypeMotivationLawMastery NotificationType = "motivation_law_mastery"
	TypeMotivationBestTime   NotificationType = "motivation_best_time"
	TypeDisputeUpdate        NotificationType = "dispute_update"
)

// Category groups types that share filter and lifecycle policy.
type Category string

const (
	CategoryArticles    Category = "articles"
	CategoryRegression  Category = "regression"
	CategoryAchievement Category = "achievement"
	CategoryMotivation  Category = "motivation"
	CategoryDispute     Category = "dispute"
	CategorySupport     Category = "support"
	CategoryUnknown     Category = "unknown"
)

// TypeSpec is the static policy attached to one notification type.
type TypeSpec struct {
	Priority int
	Category Category
	// Durable types mirror an upstream record; reading them is permanent.
	Durable bool
	// OutOfBand types may be pushed or emailed.
	OutOfBand bool
}

var typeSpecs = map[NotificationType]TypeSpec{
	TypeLevelRegression:      {Priority: 95, Category: CategoryRegression, OutOfBand: true},
	TypeProblematicArticles:  {Priority: 85, Category: CategoryArticles, OutOfBand: true},
	TypeSupportReply:         {Priority: 75, Category: CategorySupport, Durable: true, OutOfBand: true},
	TypeSystemMessage:        {Priority: 72, Category: CategorySupport, Durable: true, OutOfBand: true},
	TypeAchievementStreak:    {Priority: 60, Category: CategoryAchievement},
	TypeAchievementScore:     {Priority: 58, Category: CategoryAchievement},
	TypeAchievementWeekly:    {Priority: 55, Category: CategoryAchievement},
	TypeMotivationAccuracy:   {Priority: 45, Category: CategoryMotivation},
	TypeMotivationConsistent: {Priority: 42, Category: CategoryMotivation},
	TypeMotivationLawMastery: {Priority: 38, Category: CategoryMotivation},
	TypeMotivationBestTime:   {Priority: 35, Category: CategoryMotivation},
	TypeDisputeUpdate:        {Priority: 40, Category: CategoryDispute, Durable: true, OutOfBand: true},
}

// Spec returns the policy of t; unknown types get a zero priority and
// CategoryUnknown.
func (t NotificationType) Spec() (TypeSpec, bool) {
	spec, ok := typeSpecs[t]
	if !ok {
		return TypeSpec{Category: CategoryUnknown}, false
	}
	return spec, true
}

func (t NotificationType) Priority() int {
	spec, _ := t.Spec()
	return spec.Priority
}

func (t NotificationType) Category() Category {
	spec, _ := t.Spec()
	return spec.Category
}

// Types lists every known type.
func Types() []NotificationType {
	out := make([]NotificationType, 0, len(typeSpecs))
	for t := range typeSpecs {
		out = append(out, t)
	}
	return out
}

// TypeOfID extracts the type prefix from a deterministic notification id.
func TypeOfID(id string) NotificationType {
	prefix, _, _ := strings.Cut(id, ":")
	return NotificationType(prefix)
}

// IsDurableID reports whether the id belongs to an upstream-backed notification.
func IsDurableID(id string) bool {
	spec, ok := TypeOfID(id).Spec()
	return ok && spec.Durable
}

// SourceName identifies one source adapter.
type SourceName string

const (
	SourceDisputes    SourceName = "disputes"
	SourceArticles    SourceName = "problematic_articles"
	SourceRegressions SourceName = "regressions"
	SourceAchievement SourceName = "achievements"
	SourceMotivation  SourceName = "motivation"
	SourceSupport     SourceName = "support"
	SourceStatic      SourceName = "static"
)

// Candidate is one freshly computed, not yet filtered notification.
type Candidate struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Priority    int              `json:"priority"`
	Source      SourceName       `json:"source"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Payload     Payload          `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
	IsRead      bool             `json:"is_read"`
	IsDismissed bool             `json:"is_dismissed"`
}

// NewCandidate builds a candidate whose id and priority derive from payload.
func NewCandidate(t NotificationType, payload Payload, title, message string, now time.Time) Candidate {
	return Candidate{
		ID:        BuildID(t, payload),
		Type:      t,
		Priority:  t.Priority(),
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: now,
	}
}

// BuildID derives the stable id of a notification from its type and payload.
func BuildID(t NotificationType, payload Payload) string {
	if payload == nil {
		return string(t)
	}
	return string(t) + ":" + payload.discriminator()
}

// User is the recipient view needed for delivery.
type User struct {
	ID          string `json:"id" db:"id"`
	Email       string `json:"email" db:"email"`
	Name        string `json:"name" db:"name"`
	PushEnabled bool   `json:"push_enabled" db:"push_enabled"`
}

// Less orders candidates by priority desc, then newest first, then id.
func Less(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortCandidates sorts cs in place with Less.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return Less(cs[i], cs[j]) })
}
