package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikseotools/vence/internal/config"
	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
)

const upstreamSchema = `
CREATE TABLE user_article_stats (user_id TEXT, law_code TEXT, law_name TEXT, article_number TEXT, accuracy REAL, attempts INTEGER);
CREATE TABLE user_stats (user_id TEXT PRIMARY KEY, tests_completed INTEGER, current_streak INTEGER);
CREATE TABLE user_weekly_stats (user_id TEXT, week TEXT, tests_completed INTEGER, average_score REAL);
CREATE TABLE user_law_regressions (user_id TEXT, law_code TEXT, law_name TEXT, previous_accuracy REAL, current_accuracy REAL);
CREATE TABLE user_study_insights (user_id TEXT, type TEXT, metric REAL, detail TEXT);
CREATE TABLE question_disputes (id TEXT PRIMARY KEY, user_id TEXT, status TEXT, law_code TEXT, article TEXT, question_id TEXT, resolved_at TIMESTAMP, is_read BOOLEAN);
CREATE TABLE support_messages (id TEXT PRIMARY KEY, user_id TEXT, conversation_id TEXT, kind TEXT, subject TEXT, body TEXT, created_at TIMESTAMP, is_read BOOLEAN);
CREATE TABLE user_profiles (id TEXT PRIMARY KEY, email TEXT, name TEXT, push_enabled BOOLEAN);
`

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := NewDB(config.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:", MaxOpen: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	_, err = db.Exec(upstreamSchema)
	require.NoError(t, err)
	return db
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewStore(NewBaseRepository(db))
	key := repository.Key{UserID: "u1", Kind: repository.KindCooldown, Name: "lpac:14"}

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []byte(`{"v":1}`), time.Hour))
	require.NoError(t, s.Set(ctx, key, []byte(`{"v":2}`), time.Hour))
	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":2}`, string(got))

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreHidesExpiredRowsAndPrunes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewStore(NewBaseRepository(db))
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	short := repository.Key{UserID: "u1", Kind: repository.KindLifecycle, Name: "a"}
	forever := repository.Key{UserID: "u1", Kind: repository.KindLifecycle, Name: "b"}
	require.NoError(t, s.Set(ctx, short, []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, forever, []byte("y"), 0))

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, err := s.Get(ctx, short)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Prune(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err = s.Get(ctx, forever)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreDeleteUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewStore(NewBaseRepository(db))
	a := repository.Key{UserID: "u1", Kind: repository.KindQuota, Name: "achievements"}
	b := repository.Key{UserID: "u2", Kind: repository.KindQuota, Name: "achievements"}
	require.NoError(t, s.Set(ctx, a, []byte("x"), 0))
	require.NoError(t, s.Set(ctx, b, []byte("x"), 0))

	require.NoError(t, s.DeleteUser(ctx, "u1"))
	_, ok, _ := s.Get(ctx, a)
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, b)
	assert.True(t, ok)
}

func TestAnalyticsRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	db.MustExec(`INSERT INTO user_article_stats VALUES
		('u1','LPAC','Ley 39/2015','21',55,4),
		('u1','LPAC','Ley 39/2015','14',45,6),
		('u2','CE','Constitución','1',10,9)`)
	db.MustExec(`INSERT INTO user_stats VALUES ('u1', 42, 10)`)
	db.MustExec(`INSERT INTO user_weekly_stats VALUES ('u1', ?, 25, 81.5)`, model.ISOWeek(now))
	db.MustExec(`INSERT INTO user_law_regressions VALUES ('u1','LPAC','Ley 39/2015',80,60)`)
	db.MustExec(`INSERT INTO user_study_insights VALUES ('u1','motivation_best_time',0.8,'mornings')`)

	r := NewAnalyticsRepository(NewBaseRepository(db))

	articles, err := r.ProblematicArticles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "14", articles[0].ArticleNumber)
	assert.Equal(t, 45.0, articles[0].Accuracy)

	tests, err := r.TestsCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 42, tests)

	streak, err := r.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, streak)

	missing, err := r.TestsCompleted(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, missing)

	weekly, err := r.WeeklyTestStats(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 25, weekly.TestsCompleted)

	emptyWeek, err := r.WeeklyTestStats(ctx, "u1", now.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, model.ISOWeek(now.AddDate(0, 0, 7)), emptyWeek.Week)
	assert.Zero(t, emptyWeek.TestsCompleted)

	regressions, err := r.Regressions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, regressions, 1)
	assert.Equal(t, 20.0, regressions[0].Drop())

	insights, err := r.StudyInsights(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, model.TypeMotivationBestTime, insights[0].Type)
}

func TestDisputeAndSupportRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	db.MustExec(`INSERT INTO question_disputes VALUES
		('d1','u1','resolved','LPAC','14','q1',?,0),
		('d2','u1','pending','LPAC','21','q2',?,0),
		('d3','u1','rejected','CE','1','q3',?,1)`, at, at, at)
	db.MustExec(`INSERT INTO support_messages VALUES
		('m1','u1','c1','reply','Tu consulta','Hola',?,0)`, at)
	db.MustExec(`INSERT INTO user_profiles VALUES ('u1','ana@example.com','Ana',1)`)

	base := NewBaseRepository(db)
	disputes := NewDisputeRepository(base)
	updates, err := disputes.DisputeUpdates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "d1", updates[0].ID)
	assert.Equal(t, model.DisputeResolved, updates[0].Status)

	require.NoError(t, disputes.MarkDisputeRead(ctx, "u1", "d1"))
	updates, err = disputes.DisputeUpdates(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.ErrorIs(t, disputes.MarkDisputeRead(ctx, "u2", "d1"), repository.ErrNotFound)

	support := NewSupportRepository(base)
	msgs, err := support.SupportMessages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SupportKindReply, msgs[0].Kind)
	require.NoError(t, support.MarkSupportMessageRead(ctx, "u1", "m1"))

	users := NewUserDirectory(base)
	user, err := users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, user.PushEnabled)

	_, err = users.GetUser(ctx, "u9")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
