package model

import (
	"sort"
	"strconv"
	"strings"
)

// Payload is the type-specific data of a candidate. The set of variants is
// closed: only types in this package implement it.
type Payload interface {
	// Accepts reports whether the payload variant may back type t.
	Accepts(t NotificationType) bool
	discriminator() string
}

// ArticleStat is the per-article accuracy snapshot supplied by analytics.
type ArticleStat struct {
	Number   string  `json:"number" validate:"notblank"`
	Accuracy float64 `json:"accuracy" validate:"gte=0,lte=100"`
	Attempts int     `json:"attempts" validate:"gte=0"`
}

// ProblematicArticlesPayload backs TypeProblematicArticles.
type ProblematicArticlesPayload struct {
	LawCode  string        `json:"law_code" validate:"notblank"`
	LawName  string        `json:"law_name"`
	Articles []ArticleStat `json:"articles" validate:"min=1,dive"`
	// TestsCompleted is the user's lifetime test counter at generation time.
	TestsCompleted int `json:"tests_completed" validate:"gte=0"`
}

func (p ProblematicArticlesPayload) Accepts(t NotificationType) bool {
	return t == TypeProblematicArticles
}

func (p ProblematicArticlesPayload) discriminator() string {
	return strings.ToLower(strings.TrimSpace(p.LawCode)) + ":" + strings.Join(p.ArticleNumbers(), ",")
}

// ArticleNumbers returns the article numbers sorted for stable ids.
func (p ProblematicArticlesPayload) ArticleNumbers() []string {
	out := make([]string, 0, len(p.Articles))
	for _, a := range p.Articles {
		out = append(out, strings.TrimSpace(a.Number))
	}
	sort.Slice(out, func(i, j int) bool {
		ni, ei := strconv.Atoi(out[i])
		nj, ej := strconv.Atoi(out[j])
		if ei == nil && ej == nil && ni != nj {
			return ni < nj
		}
		return out[i] < out[j]
	})
	return out
}

// WorstAccuracy returns the lowest accuracy among the articles.
func (p ProblematicArticlesPayload) WorstAccuracy() float64 {
	worst := 100.0
	for _, a := range p.Articles {
		if a.Accuracy < worst {
			worst = a.Accuracy
		}
	}
	return worst
}

// RegressionPayload backs TypeLevelRegression.
type RegressionPayload struct {
	LawCode          string  `json:"law_code" validate:"notblank"`
	LawName          string  `json:"law_name"`
	PreviousAccuracy float64 `json:"previous_accuracy" validate:"gte=0,lte=100"`
	CurrentAccuracy  float64 `json:"current_accuracy" validate:"gte=0,lte=100"`
}

func (p RegressionPayload) Accepts(t NotificationType) bool {
	return t == TypeLevelRegression
}

func (p RegressionPayload) discriminator() string {
	return strings.ToLower(strings.TrimSpace(p.LawCode))
}

// MilestoneKind selects which milestone ladder applies.
type MilestoneKind string

const (
	MilestoneStreak      MilestoneKind = "streak"
	MilestoneWeeklyTests MilestoneKind = "weekly_tests"
	MilestoneScore       MilestoneKind = "score"
)

// MilestonePayload backs the achievement types.
type MilestonePayload struct {
	Kind  MilestoneKind `json:"kind" validate:"oneof=streak weekly_tests score"`
	Value int           `json:"value" validate:"gt=0"`
	// Period scopes repeatable milestones, e.g. the ISO week "2026-W42".
	Period string `json:"period,omitempty"`
}

func (p MilestonePayload) Accepts(t NotificationType) bool {
	switch p.Kind {
	case MilestoneStreak:
		return t == TypeAchievementStreak
	case MilestoneWeeklyTests:
		return t == TypeAchievementWeekly
	case MilestoneScore:
		return t == TypeAchievementScore
	}
	return false
}

func (p MilestonePayload) discriminator() string {
	if p.Period == "" {
		return strconv.Itoa(p.Value)
	}
	return p.Period + ":" + strconv.Itoa(p.Value)
}

// MotivationPayload backs the motivational analytic types.
type MotivationPayload struct {
	Category string  `json:"category" validate:"notblank"`
	Metric   float64 `json:"metric"`
	Detail   string  `json:"detail,omitempty"`
	Period   string  `json:"period" validate:"notblank"`
}

func (p MotivationPayload) Accepts(t NotificationType) bool {
	return t.Category() == CategoryMotivation
}

func (p MotivationPayload) discriminator() string {
	return p.Period
}

// DisputeStatus mirrors the upstream dispute state.
type DisputeStatus string

const (
	DisputeResolved DisputeStatus = "resolved"
	DisputeRejected DisputeStatus = "rejected"
	DisputePending  DisputeStatus = "pending"
	DisputeAppealed DisputeStatus = "appealed"
)

// DisputePayload backs TypeDisputeUpdate.
type DisputePayload struct {
	DisputeID  string        `json:"dispute_id" validate:"notblank"`
	Status     DisputeStatus `json:"status" validate:"notblank"`
	LawCode    string        `json:"law_code"`
	Article    string        `json:"article"`
	QuestionID string        `json:"question_id"`
}

func (p DisputePayload) Accepts(t NotificationType) bool {
	return t == TypeDisputeUpdate
}

func (p DisputePayload) discriminator() string {
	return p.DisputeID + ":" + string(p.Status)
}

// SupportPayload backs support replies and system messages.
type SupportPayload struct {
	MessageID      string `json:"message_id" validate:"notblank"`
	ConversationID string `json:"conversation_id"`
	Subject        string `json:"subject"`
}

func (p SupportPayload) Accepts(t NotificationType) bool {
	return t == TypeSupportReply || t == TypeSystemMessage
}

func (p SupportPayload) discriminator() string {
	return p.MessageID
}

// UpstreamID returns the id of the upstream record behind a durable
// notification id, e.g. the dispute id of "dispute_update:d-1:resolved".
// Upstream ids may contain ':', so the dispute status is cut from the right.
func UpstreamID(id string) string {
	t, rest, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	if NotificationType(t) == TypeDisputeUpdate {
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return ""
		}
		rest = rest[:i]
	}
	return rest
}
