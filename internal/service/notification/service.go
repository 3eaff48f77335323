package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/internal/service/action"
	"github.com/rikseotools/vence/internal/service/aggregate"
	"github.com/rikseotools/vence/internal/service/cooldown"
	"github.com/rikseotools/vence/internal/service/delivery"
	"github.com/rikseotools/vence/internal/service/lifecycle"
	"github.com/rikseotools/vence/internal/service/source"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/keylock"
	"github.com/rikseotools/vence/pkg/logger"
	"github.com/rikseotools/vence/pkg/messaging"
	"github.com/rikseotools/vence/pkg/metrics"
)

type Config struct {
	SourceTimeout  time.Duration
	MaxConcurrency int
	// FeedCacheTTL of zero disables the feed cache.
	FeedCacheTTL time.Duration
	AllowReset   bool
}

func DefaultConfig() Config {
	return Config{
		SourceTimeout:  2 * time.Second,
		MaxConcurrency: 4,
		FeedCacheTTL:   30 * time.Second,
	}
}

// Deps are the collaborators of the engine. Delivery and Users may be nil
// when out-of-band delivery is not configured.
type Deps struct {
	Sources   []source.Source
	Filter    *cooldown.Filter
	Lifecycle *lifecycle.Manager
	Resolver  *action.Resolver
	Delivery  *delivery.Coordinator
	Users     repository.UserDirectory
	Clock     func() time.Time
}

// Feed is the aggregated notification list of one user.
type Feed struct {
	UserID        string                                 `json:"user_id"`
	Items         []model.Candidate                      `json:"items"`
	UnreadCount   int                                    `json:"unread_count"`
	Buckets       map[aggregate.Bucket][]model.Candidate `json:"buckets"`
	Suppressed    []cooldown.Suppression                 `json:"suppressed,omitempty"`
	FailedSources []model.SourceName                     `json:"failed_sources,omitempty"`
	GeneratedAt   time.Time                              `json:"generated_at"`
}

// Find returns the item with id.
func (f *Feed) Find(id string) (model.Candidate, bool) {
	for _, c := range f.Items {
		if c.ID == id {
			return c, true
		}
	}
	return model.Candidate{}, false
}

// DeliveryResult reports a DeliverIfEligible call.
type DeliveryResult struct {
	Eligible bool             `json:"eligible"`
	Outcome  delivery.Outcome `json:"outcome"`
}

// Service is the notification engine: sources, filter and aggregation on
// read, lifecycle transitions and delivery on write. Feeds take a per-user
// read lock and mutations the write lock, so a mutation is never overwritten
// by a feed computed against older state.
type Service struct {
	deps    Deps
	cfg     Config
	feeds   *cache.Cache
	locks   *keylock.Map
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(deps Deps, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Resolver == nil {
		deps.Resolver = action.NewResolver(nil)
	}
	def := DefaultConfig()
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = def.SourceTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	s := &Service{
		deps:    deps,
		cfg:     cfg,
		locks:   keylock.New(),
		logger:  log.Component("engine"),
		metrics: m,
	}
	if cfg.FeedCacheTTL > 0 {
		s.feeds = cache.New(cfg.FeedCacheTTL, 2*cfg.FeedCacheTTL)
	}
	return s
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.BadRequest("user id is required", nil)
	}
	return nil
}

// GetNotificationFeed returns the current feed of userID. Failing sources are
// skipped and listed in FailedSources.
func (s *Service) GetNotificationFeed(ctx context.Context, userID string) (*Feed, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(userID)
	defer unlock()
	return s.feed(ctx, userID), nil
}

func (s *Service) feed(ctx context.Context, userID string) *Feed {
	if s.feeds != nil {
		if cached, ok := s.feeds.Get(userID); ok {
			return cached.(*Feed)
		}
	}

	started := time.Now()
	now := s.deps.Clock()
	bySource, failed := s.collect(ctx, userID, now)

	res := s.deps.Filter.Filter(ctx, userID, dedupe(bySource))
	grouped := make(map[model.SourceName][]model.Candidate)
	for _, c := range res.Emitted {
		grouped[c.Source] = append(grouped[c.Source], c)
	}
	agg := aggregate.Aggregate(grouped)

	f := &Feed{
		UserID:        userID,
		Items:         agg.Items,
		UnreadCount:   agg.UnreadCount,
		Buckets:       agg.Buckets,
		Suppressed:    res.Suppressed,
		FailedSources: failed,
		GeneratedAt:   now,
	}
	if s.feeds != nil {
		s.feeds.SetDefault(userID, f)
	}
	if s.metrics != nil {
		s.metrics.FeedLatency.Observe(time.Since(started).Seconds())
	}
	return f
}

// collect runs every source concurrently with its own timeout.
func (s *Service) collect(ctx context.Context, userID string, now time.Time) (map[model.SourceName][]model.Candidate, []model.SourceName) {
	results := make([][]model.Candidate, len(s.deps.Sources))
	var (
		mu     sync.Mutex
		failed []model.SourceName
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, src := range s.deps.Sources {
		i, src := i, src
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
			defer cancel()

			cands, err := src.Candidates(sctx, userID, now)
			if err != nil {
				err = apperrors.SourceUnavailable(string(src.Name()), err)
				s.logger.Warn(err, "notification source failed", "user_id", userID, "source", string(src.Name()))
				if s.metrics != nil {
					s.metrics.SourceFailures.WithLabelValues(string(src.Name())).Inc()
				}
				mu.Lock()
				failed = append(failed, src.Name())
				mu.Unlock()
				return nil
			}
			for j := range cands {
				if cands[j].Source == "" {
					cands[j].Source = src.Name()
				}
			}
			if s.metrics != nil {
				s.metrics.CandidatesTotal.WithLabelValues(string(src.Name())).Add(float64(len(cands)))
			}
			results[i] = cands
			return nil
		})
	}
	_ = g.Wait()

	bySource := make(map[model.SourceName][]model.Candidate, len(results))
	for i, cands := range results {
		if len(cands) > 0 {
			name := s.deps.Sources[i].Name()
			bySource[name] = append(bySource[name], cands...)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return bySource, failed
}

// dedupe flattens candidates in source name order, keeping the first of
// each id.
func dedupe(bySource map[model.SourceName][]model.Candidate) []model.Candidate {
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, string(name))
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var out []model.Candidate
	for _, name := range names {
		for _, c := range bySource[model.SourceName(name)] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) evict(userID string) {
	if s.feeds != nil {
		s.feeds.Delete(userID)
	}
}

func (s *Service) find(ctx context.Context, userID, id string) (model.Candidate, error) {
	c, ok := s.feed(ctx, userID).Find(id)
	if !ok {
		return model.Candidate{}, apperrors.NotFound("notification", nil)
	}
	return c, nil
}

func parseSlot(raw string) (action.Slot, error) {
	slot, ok := action.ParseSlot(raw)
	if !ok {
		return "", apperrors.BadRequest("slot must be primary or secondary", nil)
	}
	return slot, nil
}

// ResolveAction returns the link behind slot of a notification in the
// user's feed. ok is false when the type offers no such action.
func (s *Service) ResolveAction(ctx context.Context, userID, id, slot string) (url string, ok bool, err error) {
	if err := requireUser(userID); err != nil {
		return "", false, err
	}
	sl, err := parseSlot(slot)
	if err != nil {
		return "", false, err
	}
	unlock := s.locks.RLock(userID)
	defer unlock()

	c, err := s.find(ctx, userID, id)
	if err != nil {
		return "", false, err
	}
	url, ok = s.deps.Resolver.Resolve(c, sl)
	return url, ok, nil
}

// ActOn resolves slot and marks the notification read before returning the
// link. Nothing is persisted when the slot has no action.
func (s *Service) ActOn(ctx context.Context, userID, id, slot string) (string, error) {
	if err := requireUser(userID); err != nil {
		return "", err
	}
	sl, err := parseSlot(slot)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	c, err := s.find(ctx, userID, id)
	if err != nil {
		return "", err
	}
	url, ok := s.deps.Resolver.Resolve(c, sl)
	if !ok {
		return "", apperrors.NotFound("action", nil)
	}
	if err := s.deps.Lifecycle.MarkRead(ctx, userID, id); err != nil {
		return "", err
	}
	s.evict(userID)
	return url, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	defer s.evict(userID)
	return s.deps.Lifecycle.MarkRead(ctx, userID, id)
}

func (s *Service) Dismiss(ctx context.Context, userID, id string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	defer s.evict(userID)
	return s.deps.Lifecycle.Dismiss(ctx, userID, id)
}

// DeliverIfEligible sends a feed notification out of band when its type
// allows it.
func (s *Service) DeliverIfEligible(ctx context.Context, userID, id string) (DeliveryResult, error) {
	if err := requireUser(userID); err != nil {
		return DeliveryResult{}, err
	}
	if s.deps.Delivery == nil || s.deps.Users == nil {
		return DeliveryResult{}, apperrors.DeliveryFailure("out-of-band", errors.New("delivery is not configured"))
	}

	unlock := s.locks.RLock(userID)
	c, err := s.find(ctx, userID, id)
	unlock()
	if err != nil {
		return DeliveryResult{}, err
	}
	if spec, _ := c.Type.Spec(); !spec.OutOfBand {
		return DeliveryResult{}, nil
	}

	user, err := s.deps.Users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return DeliveryResult{}, apperrors.NotFound("user", err)
	}
	if err != nil {
		return DeliveryResult{}, apperrors.Internal(err)
	}

	out, err := s.deps.Delivery.Deliver(ctx, *user, c)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Eligible: true, Outcome: out}, nil
}

// Reset wipes the user's notification state. It is refused unless enabled.
func (s *Service) Reset(ctx context.Context, userID string) error {
	if !s.cfg.AllowReset {
		return apperrors.Forbidden("notification reset is disabled")
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	defer s.evict(userID)
	return s.deps.Lifecycle.Reset(ctx, userID)
}

// Invalidate drops the cached feed of userID.
func (s *Service) Invalidate(userID string) {
	s.evict(userID)
}

// ListenForChanges evicts cached feeds when another replica publishes a
// lifecycle change. It returns once the subscription is established.
func (s *Service) ListenForChanges(ctx context.Context, sub messaging.Subscriber) error {
	return messaging.Consume(ctx, sub, lifecycle.ChangedChannel, func(env messaging.Envelope) error {
		var evt lifecycle.ChangeEvent
		if err := env.Decode(&evt); err != nil {
			return err
		}
		s.evict(evt.UserID)
		return nil
	}, func(err error) {
		s.logger.Warn(err, "ignoring malformed change event")
	})
}
