package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
)

// Disputes surfaces resolved, rejected or appealed question disputes.
type Disputes struct {
	repo repository.DisputeRepository
}

func NewDisputes(repo repository.DisputeRepository) *Disputes {
	return &Disputes{repo: repo}
}

func (s *Disputes) Name() model.SourceName { return model.SourceDisputes }

var disputeTitles = map[model.DisputeStatus]string{
	model.DisputeResolved: "Impugnación aceptada",
	model.DisputeRejected: "Impugnación rechazada",
	model.DisputeAppealed: "Impugnación en revisión",
}

func (s *Disputes) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	rows, err := s.repo.DisputeUpdates(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, d := range rows {
		title, ok := disputeTitles[d.Status]
		if !ok || d.IsRead {
			continue
		}
		at := d.ResolvedAt
		if at.IsZero() {
			at = now
		}
		p := model.DisputePayload{
			DisputeID:  d.ID,
			Status:     d.Status,
			LawCode:    d.LawCode,
			Article:    d.Article,
			QuestionID: d.QuestionID,
		}
		message := "Revisa la respuesta a tu impugnación."
		if d.Article != "" {
			message = fmt.Sprintf("Revisa la respuesta a tu impugnación sobre el artículo %s.", d.Article)
		}
		out = append(out, candidate(s.Name(), model.TypeDisputeUpdate, p, title, message, at))
	}
	return out, nil
}

// Support surfaces unread support replies and system messages.
type Support struct {
	repo repository.SupportRepository
}

func NewSupport(repo repository.SupportRepository) *Support {
	return &Support{repo: repo}
}

func (s *Support) Name() model.SourceName { return model.SourceSupport }

func (s *Support) Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error) {
	rows, err := s.repo.SupportMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, m := range rows {
		if m.IsRead {
			continue
		}
		t := model.TypeSupportReply
		title := "Nueva respuesta de soporte"
		if m.Kind == model.SupportKindSystem {
			t = model.TypeSystemMessage
			title = "Mensaje del equipo de Vence"
		}
		if m.Subject != "" {
			title = m.Subject
		}
		at := m.CreatedAt
		if at.IsZero() {
			at = now
		}
		p := model.SupportPayload{MessageID: m.ID, ConversationID: m.ConversationID, Subject: m.Subject}
		out = append(out, candidate(s.Name(), t, p, title, m.Body, at))
	}
	return out, nil
}

// Static serves a fixed set of candidates. It backs the debug feed and tests.
type Static struct {
	name       model.SourceName
	candidates []model.Candidate
	err        error
}

func NewStatic(candidates ...model.Candidate) *Static {
	return &Static{name: model.SourceStatic, candidates: candidates}
}

// Named returns a copy of s reporting a different source name.
func (s *Static) Named(name model.SourceName) *Static {
	return &Static{name: name, candidates: s.candidates, err: s.err}
}

// Failing returns a static source whose every call fails with err.
func Failing(name model.SourceName, err error) *Static {
	return &Static{name: name, err: err}
}

func (s *Static) Name() model.SourceName { return s.name }

func (s *Static) Candidates(ctx context.Context, _ string, _ time.Time) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Candidate, len(s.candidates))
	for i, c := range s.candidates {
		if c.Source == "" {
			c.Source = s.name
		}
		out[i] = c
	}
	return out, nil
}

// DebugCandidates is the fixed set served when the static source is enabled.
// Its types are not upstream-backed, so reads stay local.
func DebugCandidates(now time.Time) []model.Candidate {
	return []model.Candidate{
		candidate(model.SourceStatic, model.TypeLevelRegression,
			model.RegressionPayload{LawCode: "LPAC", LawName: "Ley 39/2015", PreviousAccuracy: 80, CurrentAccuracy: 60},
			"Notificación de prueba",
			"Este mensaje solo aparece con el origen de depuración activado.",
			now),
	}
}
