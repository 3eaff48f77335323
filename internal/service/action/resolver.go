package action

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rikseotools/vence/internal/model"
)

//go:embed actions.yaml
var defaultDefinitions []byte

// Slot selects the primary or secondary action of a notification.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

// ParseSlot accepts "primary" and "secondary".
func ParseSlot(s string) (Slot, bool) {
	switch Slot(strings.ToLower(s)) {
	case SlotPrimary:
		return SlotPrimary, true
	case SlotSecondary:
		return SlotSecondary, true
	}
	return "", false
}

type Action struct {
	Label string `yaml:"label" json:"label"`
	Kind  string `yaml:"kind" json:"kind"`
}

type TypeActions struct {
	Primary   *Action           `yaml:"primary" json:"primary,omitempty"`
	Secondary *Action           `yaml:"secondary" json:"secondary,omitempty"`
	Routes    map[string]string `yaml:"routes" json:"-"`
}

type Definitions struct {
	DefaultRoute string                                 `yaml:"default_route"`
	Routes       map[string]string                      `yaml:"routes"`
	Types        map[model.NotificationType]TypeActions `yaml:"types"`
}

// ParseDefinitions decodes a YAML action table.
func ParseDefinitions(raw []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse action definitions: %w", err)
	}
	if defs.DefaultRoute == "" {
		return nil, fmt.Errorf("action definitions need a default_route")
	}
	return &defs, nil
}

// DefaultDefinitions returns the embedded action table.
func DefaultDefinitions() *Definitions {
	defs, err := ParseDefinitions(defaultDefinitions)
	if err != nil {
		panic(err)
	}
	return defs
}

// Resolver turns a notification and a slot into a tracked deep link.
type Resolver struct {
	defs *Definitions
}

func NewResolver(defs *Definitions) *Resolver {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Resolver{defs: defs}
}

// Actions returns the actions offered for t.
func (r *Resolver) Actions(t model.NotificationType) TypeActions {
	return r.defs.Types[t]
}

func (r *Resolver) action(t model.NotificationType, slot Slot) *Action {
	ta, ok := r.defs.Types[t]
	if !ok {
		return nil
	}
	switch slot {
	case SlotPrimary:
		return ta.Primary
	case SlotSecondary:
		return ta.Secondary
	}
	return nil
}

// Resolve returns the URL behind slot, or ok=false when the type offers no
// such action.
func (r *Resolver) Resolve(c model.Candidate, slot Slot) (string, bool) {
	act := r.action(c.Type, slot)
	if act == nil {
		return "", false
	}

	template := r.defs.Types[c.Type].Routes[act.Kind]
	if template == "" {
		template = r.defs.Routes[act.Kind]
	}
	path, ok := fill(template, placeholders(c.Payload))
	if template == "" || !ok {
		path = r.defs.DefaultRoute
	}
	return withTracking(path, c), true
}

// PrimaryLink returns a function building the absolute primary link of a
// candidate, or "" when it has none.
func (r *Resolver) PrimaryLink(baseURL string) func(model.Candidate) string {
	base := strings.TrimRight(baseURL, "/")
	return func(c model.Candidate) string {
		path, ok := r.Resolve(c, SlotPrimary)
		if !ok {
			return ""
		}
		return base + path
	}
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// fill substitutes every placeholder; it fails when one has no value. Values
// are escaped for the part of the URL they land in.
func fill(template string, values map[string]string) (string, bool) {
	path, query, hasQuery := strings.Cut(template, "?")
	ok := true
	replace := func(part string, escape func(string) string) string {
		return placeholderRe.ReplaceAllStringFunc(part, func(m string) string {
			v := values[m[1:len(m)-1]]
			if v == "" {
				ok = false
			}
			return escape(v)
		})
	}
	out := replace(path, url.PathEscape)
	if hasQuery {
		out += "?" + replace(query, url.QueryEscape)
	}
	return out, ok
}

func placeholders(p model.Payload) map[string]string {
	values := make(map[string]string)
	switch p := p.(type) {
	case model.ProblematicArticlesPayload:
		values["law_slug"] = LawSlug(p.LawCode)
		values["articles"] = strings.Join(p.ArticleNumbers(), ",")
		if len(p.Articles) > 0 {
			values["first_article"] = strings.TrimSpace(p.Articles[0].Number)
		}
	case model.RegressionPayload:
		values["law_slug"] = LawSlug(p.LawCode)
	case model.DisputePayload:
		values["dispute_id"] = p.DisputeID
		values["question_id"] = p.QuestionID
		if p.LawCode != "" {
			values["law_slug"] = LawSlug(p.LawCode)
		}
	case model.SupportPayload:
		values["conversation_id"] = p.ConversationID
		values["message_id"] = p.MessageID
	case model.MilestonePayload, model.MotivationPayload:
	}
	return values
}

func withTracking(path string, c model.Candidate) string {
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: path}
	}
	q := u.Query()
	q.Set("utm_source", "notification")
	q.Set("utm_campaign", string(c.Type))
	q.Set("notification_id", c.ID)
	u.RawQuery = q.Encode()
	return u.String()
}
