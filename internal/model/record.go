package model

import "time"

// CooldownRecord remembers the last emission of one cooldown key, e.g. a
// (law, article) pair or a milestone.
type CooldownRecord struct {
	LastShownAt      time.Time `json:"last_shown_at"`
	CountAtLastShown int       `json:"count_at_last_shown"`
	NotificationID   string    `json:"notification_id"`
	// Acknowledged is set once the user read or dismissed the emitted notification.
	Acknowledged bool `json:"acknowledged"`
}

// QuotaRecord holds the emission times counted against a rolling quota.
type QuotaRecord struct {
	Emissions []time.Time `json:"emissions"`
}

// Within returns the emissions newer than now-window.
func (q QuotaRecord) Within(now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := make([]time.Time, 0, len(q.Emissions))
	for _, t := range q.Emissions {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// LifecycleAction is a user-driven state change on a notification.
type LifecycleAction string

const (
	ActionRead      LifecycleAction = "read"
	ActionDismissed LifecycleAction = "dismissed"
)

type LifecycleRecord struct {
	Action LifecycleAction `json:"action"`
	At     time.Time       `json:"at"`
}

// CategoryCooldown suppresses a motivational type after a dismissal.
type CategoryCooldown struct {
	StartedAt time.Time `json:"started_at"`
}

// ActiveIndex lists the cooldown record names written for one emitted notification.
type ActiveIndex struct {
	CooldownKeys []string `json:"cooldown_keys"`
}

// DeliveryRecord marks a notification as delivered out of band.
type DeliveryRecord struct {
	Channel   string    `json:"channel"`
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}
