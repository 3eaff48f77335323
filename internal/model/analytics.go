package model

import (
	"fmt"
	"time"
)

// ArticlePerformance is one precomputed (law, article) accuracy row.
type ArticlePerformance struct {
	LawCode       string  `json:"law_code" db:"law_code"`
	LawName       string  `json:"law_name" db:"law_name"`
	ArticleNumber string  `json:"article_number" db:"article_number"`
	Accuracy      float64 `json:"accuracy" db:"accuracy"`
	Attempts      int     `json:"attempts" db:"attempts"`
}

// LawRegression is a drop in accuracy on one law between two periods.
type LawRegression struct {
	LawCode          string  `json:"law_code" db:"law_code"`
	LawName          string  `json:"law_name" db:"law_name"`
	PreviousAccuracy float64 `json:"previous_accuracy" db:"previous_accuracy"`
	CurrentAccuracy  float64 `json:"current_accuracy" db:"current_accuracy"`
}

// Drop is the accuracy loss in percentage points.
func (r LawRegression) Drop() float64 {
	return r.PreviousAccuracy - r.CurrentAccuracy
}

// WeeklyStats summarizes the current ISO week.
type WeeklyStats struct {
	Week           string  `json:"week" db:"week"`
	TestsCompleted int     `json:"tests_completed" db:"tests_completed"`
	AverageScore   float64 `json:"average_score" db:"average_score"`
}

// StudyInsight is one precomputed motivational observation.
type StudyInsight struct {
	Type   NotificationType `json:"type" db:"type"`
	Metric float64          `json:"metric" db:"metric"`
	Detail string           `json:"detail" db:"detail"`
}

// DisputeUpdate is an upstream dispute row visible to its author.
type DisputeUpdate struct {
	ID         string        `json:"id" db:"id"`
	Status     DisputeStatus `json:"status" db:"status"`
	LawCode    string        `json:"law_code" db:"law_code"`
	Article    string        `json:"article" db:"article"`
	QuestionID string        `json:"question_id" db:"question_id"`
	ResolvedAt time.Time     `json:"resolved_at" db:"resolved_at"`
	IsRead     bool          `json:"is_read" db:"is_read"`
}

// SupportMessageKind separates agent replies from broadcast messages.
type SupportMessageKind string

const (
	SupportKindReply  SupportMessageKind = "reply"
	SupportKindSystem SupportMessageKind = "system"
)

// SupportMessage is an upstream support or system message addressed to a user.
type SupportMessage struct {
	ID             string             `json:"id" db:"id"`
	ConversationID string             `json:"conversation_id" db:"conversation_id"`
	Kind           SupportMessageKind `json:"kind" db:"kind"`
	Subject        string             `json:"subject" db:"subject"`
	Body           string             `json:"body" db:"body"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	IsRead         bool               `json:"is_read" db:"is_read"`
}

// ISOWeek formats t as "2026-W07".
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
