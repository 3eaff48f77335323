package cooldown

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/internal/service/source"
	"github.com/rikseotools/vence/pkg/keylock"
	"github.com/rikseotools/vence/pkg/logger"
	"github.com/rikseotools/vence/pkg/metrics"
	"github.com/rikseotools/vence/pkg/validator"
)

// Reason explains why a candidate was suppressed.
type Reason string

const (
	ReasonInvalid          Reason = "invalid"
	ReasonDismissed        Reason = "dismissed"
	ReasonRead             Reason = "read"
	ReasonCooldown         Reason = "cooldown"
	ReasonNotMilestone     Reason = "not_milestone"
	ReasonAlreadyShown     Reason = "already_shown"
	ReasonQuotaBlocked     Reason = "quota_blocked"
	ReasonCategoryCooldown Reason = "category_cooldown"
)

type Config struct {
	ArticleMinDays  int
	ArticleMinTests int
	// Articles below UrgentAccuracy percent only need UrgentMinTests new tests.
	UrgentAccuracy        float64
	UrgentMinTests        int
	Retention             time.Duration
	DailyAchievementLimit int
	QuotaWindow           time.Duration
	MotivationCooldown    time.Duration
	StreakMilestones      []int
	WeeklyTestsMilestones []int
	ScoreMilestones       []int
}

func DefaultConfig() Config {
	return Config{
		ArticleMinDays:        3,
		ArticleMinTests:       5,
		UrgentAccuracy:        30,
		UrgentMinTests:        3,
		Retention:             30 * 24 * time.Hour,
		DailyAchievementLimit: 2,
		QuotaWindow:           24 * time.Hour,
		MotivationCooldown:    14 * 24 * time.Hour,
		StreakMilestones:      []int{5, 10, 20, 30, 50, 100, 200, 365},
		WeeklyTestsMilestones: []int{10, 25, 50, 100, 200},
		ScoreMilestones:       []int{80, 85, 90, 95, 100},
	}
}

type Suppression struct {
	ID     string                 `json:"id"`
	Type   model.NotificationType `json:"type"`
	Reason Reason                 `json:"reason"`
}

type Result struct {
	Emitted    []model.Candidate
	Suppressed []Suppression
}

// Filter applies lifecycle state, cooldowns and quotas to candidates.
// Records are only written for emitted candidates.
type Filter struct {
	records   *repository.RecordStore
	validator validator.Validator
	cfg       Config
	quotaLock *keylock.Map
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewFilter(records *repository.RecordStore, v validator.Validator, cfg Config, log *logger.Logger, m *metrics.Metrics) *Filter {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Filter{
		records:   records,
		validator: v,
		cfg:       cfg,
		quotaLock: keylock.New(),
		logger:    log.Component("cooldown"),
		metrics:   m,
	}
}

// Config returns the active thresholds.
func (f *Filter) Config() Config {
	return f.cfg
}

// Filter evaluates candidates in priority order so that quota slots go to the
// most important milestones first.
func (f *Filter) Filter(ctx context.Context, userID string, candidates []model.Candidate) Result {
	ordered := make([]model.Candidate, len(candidates))
	copy(ordered, candidates)
	model.SortCandidates(ordered)

	now := f.records.Now()
	var res Result
	for _, c := range ordered {
		out, reason := f.evaluate(ctx, userID, c, now)
		if reason != "" {
			res.Suppressed = append(res.Suppressed, Suppression{ID: c.ID, Type: c.Type, Reason: reason})
			f.logger.Debug("notification suppressed", "user_id", userID, "id", c.ID, "reason", string(reason))
			if f.metrics != nil {
				f.metrics.SuppressedTotal.WithLabelValues(string(reason)).Inc()
			}
			continue
		}
		res.Emitted = append(res.Emitted, out)
		if f.metrics != nil {
			f.metrics.EmittedTotal.WithLabelValues(string(out.Type)).Inc()
		}
	}
	return res
}

func (f *Filter) evaluate(ctx context.Context, userID string, c model.Candidate, now time.Time) (model.Candidate, Reason) {
	if err := f.validate(c); err != nil {
		f.logger.Warn(err, "invalid notification candidate", "user_id", userID, "id", c.ID, "type", string(c.Type))
		return c, ReasonInvalid
	}
	if reason := f.lifecycleState(ctx, userID, c.ID); reason != "" {
		return c, reason
	}

	switch p := c.Payload.(type) {
	case model.ProblematicArticlesPayload:
		return f.articles(ctx, userID, c, p, now)
	case model.MilestonePayload:
		return f.milestone(ctx, userID, c, p, now)
	case model.MotivationPayload:
		return f.motivation(ctx, userID, c)
	case model.RegressionPayload, model.DisputePayload, model.SupportPayload:
		return c, ""
	default:
		return c, ""
	}
}

func (f *Filter) validate(c model.Candidate) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("candidate id is empty")
	}
	if _, known := c.Type.Spec(); !known {
		return nil
	}
	if c.Payload == nil {
		return errors.New("candidate payload is missing")
	}
	if !c.Payload.Accepts(c.Type) {
		return errors.New("payload does not match type " + string(c.Type))
	}
	return f.validator.Validate(c.Payload)
}

// lifecycleState reports a dismissal or read of id. Store errors fail open.
func (f *Filter) lifecycleState(ctx context.Context, userID, id string) Reason {
	var rec model.LifecycleRecord
	ok, err := f.records.Load(ctx, repository.LifecycleKey(userID, id), &rec)
	if err != nil {
		f.logger.Warn(err, "lifecycle lookup failed, treating as absent", "user_id", userID, "id", id)
		return ""
	}
	if !ok {
		return ""
	}
	switch rec.Action {
	case model.ActionDismissed:
		return ReasonDismissed
	case model.ActionRead:
		return ReasonRead
	}
	return ""
}

// loadCooldown returns the live record for name. Records past retention
// and store errors count as absent.
func (f *Filter) loadCooldown(ctx context.Context, userID, name string, now time.Time) (model.CooldownRecord, bool) {
	var rec model.CooldownRecord
	ok, err := f.records.Load(ctx, repository.CooldownKey(userID, name), &rec)
	if err != nil {
		f.logger.Warn(err, "cooldown lookup failed, treating as absent", "user_id", userID, "key", name)
		return model.CooldownRecord{}, false
	}
	if !ok || now.Sub(rec.LastShownAt) > f.cfg.Retention {
		return model.CooldownRecord{}, false
	}
	return rec, true
}

func sticky(rec model.CooldownRecord, id string) bool {
	return rec.NotificationID == id && !rec.Acknowledged
}

func articleKey(lawCode, number string) string {
	return strings.ToLower(strings.TrimSpace(lawCode)) + ":" + strings.TrimSpace(number)
}

func (f *Filter) articleEligible(candidateID string, a model.ArticleStat, tests int, rec model.CooldownRecord, found bool, now time.Time) bool {
	if !found || sticky(rec, candidateID) {
		return true
	}
	testsSince := tests - rec.CountAtLastShown
	if a.Accuracy < f.cfg.UrgentAccuracy {
		return testsSince >= f.cfg.UrgentMinTests
	}
	days := int(now.Sub(rec.LastShownAt) / (24 * time.Hour))
	return days >= f.cfg.ArticleMinDays && testsSince >= f.cfg.ArticleMinTests
}

func (f *Filter) articles(ctx context.Context, userID string, c model.Candidate, p model.ProblematicArticlesPayload, now time.Time) (model.Candidate, Reason) {
	type seen struct {
		rec   model.CooldownRecord
		found bool
	}
	records := make(map[string]seen, len(p.Articles))
	var keep []model.ArticleStat
	for _, a := range p.Articles {
		name := articleKey(p.LawCode, a.Number)
		rec, found := f.loadCooldown(ctx, userID, name, now)
		records[name] = seen{rec: rec, found: found}
		if f.articleEligible(c.ID, a, p.TestsCompleted, rec, found, now) {
			keep = append(keep, a)
		}
	}
	if len(keep) == 0 {
		return c, ReasonCooldown
	}

	out := c
	if len(keep) != len(p.Articles) {
		narrowed := p
		narrowed.Articles = keep
		out = source.ProblematicArticlesCandidate(narrowed, c.CreatedAt)
		out.Source = c.Source
		if reason := f.lifecycleState(ctx, userID, out.ID); reason != "" {
			return c, reason
		}
	}

	keys := make([]string, 0, len(keep))
	wrote := false
	for _, a := range keep {
		name := articleKey(p.LawCode, a.Number)
		keys = append(keys, name)
		if s := records[name]; s.found && sticky(s.rec, out.ID) {
			continue
		}
		rec := model.CooldownRecord{LastShownAt: now, CountAtLastShown: p.TestsCompleted, NotificationID: out.ID}
		if err := f.records.Save(ctx, repository.CooldownKey(userID, name), rec, f.cfg.Retention); err != nil {
			f.logger.Warn(err, "failed to persist article cooldown", "user_id", userID, "key", name)
			continue
		}
		wrote = true
	}
	if wrote {
		f.saveActive(ctx, userID, out.ID, keys)
	}
	return out, ""
}

func (f *Filter) milestones(kind model.MilestoneKind) []int {
	switch kind {
	case model.MilestoneStreak:
		return f.cfg.StreakMilestones
	case model.MilestoneWeeklyTests:
		return f.cfg.WeeklyTestsMilestones
	case model.MilestoneScore:
		return f.cfg.ScoreMilestones
	}
	return nil
}

func (f *Filter) milestone(ctx context.Context, userID string, c model.Candidate, p model.MilestonePayload, now time.Time) (model.Candidate, Reason) {
	member := false
	for _, v := range f.milestones(p.Kind) {
		if v == p.Value {
			member = true
			break
		}
	}
	if !member {
		return c, ReasonNotMilestone
	}

	unlock := f.quotaLock.Lock(userID)
	defer unlock()

	if rec, found := f.loadCooldown(ctx, userID, c.ID, now); found {
		if sticky(rec, c.ID) {
			return c, ""
		}
		return c, ReasonAlreadyShown
	}

	var quota model.QuotaRecord
	if _, err := f.records.Load(ctx, repository.QuotaKey(userID), &quota); err != nil {
		f.logger.Warn(err, "quota lookup failed, blocking milestone", "user_id", userID, "id", c.ID)
		return c, ReasonQuotaBlocked
	}
	live := quota.Within(now, f.cfg.QuotaWindow)
	if len(live) >= f.cfg.DailyAchievementLimit {
		return c, ReasonQuotaBlocked
	}
	quota.Emissions = append(live, now)
	if err := f.records.Save(ctx, repository.QuotaKey(userID), quota, f.cfg.QuotaWindow); err != nil {
		f.logger.Warn(err, "quota update failed, blocking milestone", "user_id", userID, "id", c.ID)
		return c, ReasonQuotaBlocked
	}

	rec := model.CooldownRecord{LastShownAt: now, CountAtLastShown: p.Value, NotificationID: c.ID}
	if err := f.records.Save(ctx, repository.CooldownKey(userID, c.ID), rec, f.cfg.Retention); err != nil {
		f.logger.Warn(err, "failed to persist milestone", "user_id", userID, "id", c.ID)
		return c, ""
	}
	f.saveActive(ctx, userID, c.ID, []string{c.ID})
	return c, ""
}

func (f *Filter) motivation(ctx context.Context, userID string, c model.Candidate) (model.Candidate, Reason) {
	var cc model.CategoryCooldown
	ok, err := f.records.Load(ctx, repository.CategoryKey(userID, c.Type), &cc)
	if err != nil {
		f.logger.Warn(err, "category cooldown lookup failed, treating as absent", "user_id", userID, "type", string(c.Type))
		return c, ""
	}
	if ok {
		return c, ReasonCategoryCooldown
	}
	return c, ""
}

func (f *Filter) saveActive(ctx context.Context, userID, id string, keys []string) {
	idx := model.ActiveIndex{CooldownKeys: keys}
	if err := f.records.Save(ctx, repository.ActiveKey(userID, id), idx, f.cfg.Retention); err != nil {
		f.logger.Warn(err, "failed to index active notification", "user_id", userID, "id", id)
	}
}
