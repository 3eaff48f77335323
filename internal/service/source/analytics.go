package source

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
)

// ProblematicArticles groups weak articles by law.
type ProblematicArticles struct {
	analytics  repository.AnalyticsReader
	thresholds Thresholds
}

func NewProblematicArticles(analytics repository.AnalyticsReader, thresholds Thresholds) *ProblematicArticles {
	return &ProblematicArticles{analytics: analytics, thresholds: thresholds.withDefaults()}
}

func (s *ProblematicArticles) Name() model.SourceName { return model.SourceArticles }

func (s *ProblematicArticles) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	rows, err := s.analytics.ProblematicArticles(ctx, userID)
	if err != nil {
		return nil, err
	}
	tests, err := s.analytics.TestsCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}

	byLaw := make(map[string]*model.ProblematicArticlesPayload)
	var laws []string
	for _, row := range rows {
		if row.Accuracy >= s.thresholds.ProblematicMaxAccuracy || row.Attempts < s.thresholds.ProblematicMinAttempts {
			continue
		}
		code := strings.TrimSpace(row.LawCode)
		if code == "" || strings.TrimSpace(row.ArticleNumber) == "" {
			continue
		}
		p, ok := byLaw[code]
		if !ok {
			p = &model.ProblematicArticlesPayload{LawCode: code, LawName: row.LawName, TestsCompleted: tests}
			byLaw[code] = p
			laws = append(laws, code)
		}
		p.Articles = append(p.Articles, model.ArticleStat{
			Number:   row.ArticleNumber,
			Accuracy: row.Accuracy,
			Attempts: row.Attempts,
		})
	}
	sort.Strings(laws)

	out := make([]model.Candidate, 0, len(laws))
	for _, code := range laws {
		p := byLaw[code]
		sort.SliceStable(p.Articles, func(i, j int) bool {
			if p.Articles[i].Accuracy != p.Articles[j].Accuracy {
				return p.Articles[i].Accuracy < p.Articles[j].Accuracy
			}
			return p.Articles[i].Number < p.Articles[j].Number
		})
		if len(p.Articles) > s.thresholds.MaxArticlesPerLaw {
			p.Articles = p.Articles[:s.thresholds.MaxArticlesPerLaw]
		}
		out = append(out, ProblematicArticlesCandidate(*p, now))
	}
	return out, nil
}

// ProblematicArticlesCandidate renders the candidate for a payload. The
// filter uses it to rebuild a candidate after dropping articles.
func ProblematicArticlesCandidate(p model.ProblematicArticlesPayload, now time.Time) model.Candidate {
	title := fmt.Sprintf("Artículos problemáticos en %s", lawLabel(p.LawCode, p.LawName))
	var message string
	if len(p.Articles) == 1 {
		message = fmt.Sprintf("El artículo %s tiene un %.0f%% de acierto. Repásalo ahora.", p.Articles[0].Number, p.Articles[0].Accuracy)
	} else {
		message = fmt.Sprintf("Tienes %d artículos por debajo del 70%% de acierto (art. %s).", len(p.Articles), strings.Join(p.ArticleNumbers(), ", "))
	}
	return candidate(model.SourceArticles, model.TypeProblematicArticles, p, title, message, now)
}

// Regressions reports laws whose accuracy dropped sharply.
type Regressions struct {
	analytics  repository.AnalyticsReader
	thresholds Thresholds
}

func NewRegressions(analytics repository.AnalyticsReader, thresholds Thresholds) *Regressions {
	return &Regressions{analytics: analytics, thresholds: thresholds.withDefaults()}
}

func (s *Regressions) Name() model.SourceName { return model.SourceRegressions }

func (s *Regressions) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	rows, err := s.analytics.Regressions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, r := range rows {
		if r.Drop() < s.thresholds.RegressionMinDrop || strings.TrimSpace(r.LawCode) == "" {
			continue
		}
		p := model.RegressionPayload{
			LawCode:          r.LawCode,
			LawName:          r.LawName,
			PreviousAccuracy: r.PreviousAccuracy,
			CurrentAccuracy:  r.CurrentAccuracy,
		}
		out = append(out, candidate(model.SourceRegressions, model.TypeLevelRegression, p,
			fmt.Sprintf("Bajada de nivel en %s", lawLabel(r.LawCode, r.LawName)),
			fmt.Sprintf("Tu acierto ha pasado del %.0f%% al %.0f%%. Un repaso ahora evita perder lo aprendido.", r.PreviousAccuracy, r.CurrentAccuracy),
			now))
	}
	return out, nil
}

// Achievements emits the user's current streak, weekly test count and
// weekly score band. The filter decides which values are milestones.
type Achievements struct {
	analytics  repository.AnalyticsReader
	thresholds Thresholds
}

func NewAchievements(analytics repository.AnalyticsReader, thresholds Thresholds) *Achievements {
	return &Achievements{analytics: analytics, thresholds: thresholds.withDefaults()}
}

func (s *Achievements) Name() model.SourceName { return model.SourceAchievement }

func (s *Achievements) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	streak, err := s.analytics.Streak(ctx, userID)
	if err != nil {
		return nil, err
	}
	weekly, err := s.analytics.WeeklyTestStats(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if weekly.Week == "" {
		weekly.Week = model.ISOWeek(now)
	}

	var out []model.Candidate
	if streak > 0 {
		out = append(out, candidate(s.Name(), model.TypeAchievementStreak,
			model.MilestonePayload{Kind: model.MilestoneStreak, Value: streak},
			fmt.Sprintf("¡Racha de %d días!", streak),
			"Sigue así: cada día de estudio cuenta.",
			now))
	}
	if weekly.TestsCompleted > 0 {
		out = append(out, candidate(s.Name(), model.TypeAchievementWeekly,
			model.MilestonePayload{Kind: model.MilestoneWeeklyTests, Value: weekly.TestsCompleted, Period: weekly.Week},
			fmt.Sprintf("¡%d tests esta semana!", weekly.TestsCompleted),
			"Tu constancia se nota en los resultados.",
			now))

		band := int(math.Floor(weekly.AverageScore/float64(s.thresholds.ScoreBandWidth))) * s.thresholds.ScoreBandWidth
		if band > 0 {
			out = append(out, candidate(s.Name(), model.TypeAchievementScore,
				model.MilestonePayload{Kind: model.MilestoneScore, Value: band, Period: weekly.Week},
				fmt.Sprintf("¡Media del %d%% esta semana!", band),
				"Estás rindiendo a un gran nivel.",
				now))
		}
	}
	return out, nil
}

// Motivation forwards precomputed study insights, one per type and week.
type Motivation struct {
	analytics repository.AnalyticsReader
}

func NewMotivation(analytics repository.AnalyticsReader) *Motivation {
	return &Motivation{analytics: analytics}
}

func (s *Motivation) Name() model.SourceName { return model.SourceMotivation }

var motivationCopy = map[model.NotificationType][2]string{
	model.TypeMotivationAccuracy:   {"Tu acierto va en aumento", "Has mejorado tu porcentaje de acierto en las últimas semanas."},
	model.TypeMotivationConsistent: {"Estudias con constancia", "Mantener un ritmo regular es la clave para aprobar."},
	model.TypeMotivationLawMastery: {"Dominas una ley", "Ya tienes un nivel alto en una de tus leyes."},
	model.TypeMotivationBestTime:   {"Tu mejor momento para estudiar", "Rindes mejor en ciertas franjas horarias."},
}

func (s *Motivation) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	insights, err := s.analytics.StudyInsights(ctx, userID)
	if err != nil {
		return nil, err
	}
	week := model.ISOWeek(now)
	seen := make(map[model.NotificationType]bool)
	var out []model.Candidate
	for _, in := range insights {
		text, ok := motivationCopy[in.Type]
		if !ok || seen[in.Type] {
			continue
		}
		seen[in.Type] = true
		message := text[1]
		if in.Detail != "" {
			message = message + " " + in.Detail
		}
		p := model.MotivationPayload{
			Category: strings.TrimPrefix(string(in.Type), "motivation_"),
			Metric:   in.Metric,
			Detail:   in.Detail,
			Period:   week,
		}
		out = append(out, candidate(s.Name(), in.Type, p, text[0], message, now))
	}
	return out, nil
}
