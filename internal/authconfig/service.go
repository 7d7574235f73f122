package authconfig

import (
	"context"
	"slices"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/logger"
)

// Status is a provider with its current on/off state.
type Status struct {
	Provider
	Enabled bool `json:"enabled"`
}

// UpdateResult reports the outcome of UpdateProvider.
type UpdateResult struct {
	Provider string `json:"provider"`
	Changed  bool   `json:"changed"`
	Payload  Config `json:"payload,omitempty"`
	Config   Config `json:"config"`
}

// Service edits provider settings through an API.
type Service struct {
	api API
}

// NewService returns a Service backed by api.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Config returns the full settings object in server form.
func (s *Service) Config(ctx context.Context) (Config, error) {
	return s.api.Get(ctx)
}

// Statuses lists every provider and whether it is enabled.
func (s *Service) Statuses(ctx context.Context) ([]Status, error) {
	cfg, err := s.api.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(registry))
	for _, p := range registry {
		out = append(out, Status{Provider: p, Enabled: p.Enabled(cfg)})
	}
	return out, nil
}

// Form returns the form values of one provider.
func (s *Service) Form(ctx context.Context, provider string) (Config, error) {
	p, err := lookup(provider)
	if err != nil {
		return nil, err
	}
	cfg, err := s.api.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.Subset(ToForm(cfg)), nil
}

// UpdateProvider applies form to provider: it fetches the current settings,
// validates the edited form, and PATCHes only the changed keys. No request
// is sent when nothing changed. Keys outside the provider are rejected.
func (s *Service) UpdateProvider(ctx context.Context, provider string, form Config) (*UpdateResult, error) {
	p, err := lookup(provider)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With().Str("provider", p.ID).Logger()

	unknown := errs.FieldErrors{}
	for key := range form {
		if !p.Owns(key) {
			unknown.Add(key, "Not a setting of "+p.Title)
		}
	}
	if err := unknown.Err(); err != nil {
		return nil, err
	}

	server, err := s.api.Get(ctx)
	if err != nil {
		return nil, err
	}

	original := p.Subset(ToForm(server))
	edited := original.Clone()
	for key, value := range form {
		edited[key] = value
	}
	p.Normalize(edited)

	if err := p.Validate(edited, server); err != nil {
		log.WarnWith("auth provider form rejected", err, map[string]any{"fields": sortedKeys(errs.FieldsOf(err))})
		return nil, err
	}

	payload := GenerateUpdatePayload(original, edited)
	if len(payload) == 0 {
		log.Debug("auth provider unchanged, nothing to send")
		return &UpdateResult{Provider: p.ID, Config: server}, nil
	}

	updated, err := s.api.Update(ctx, payload)
	if err != nil {
		return nil, err
	}
	log.InfoWith("auth provider updated", map[string]any{"keys": sortedKeys(payload)})
	return &UpdateResult{Provider: p.ID, Changed: true, Payload: payload, Config: updated}, nil
}

func lookup(provider string) (Provider, error) {
	p, ok := Lookup(provider)
	if !ok {
		return Provider{}, errs.Newf(errs.ErrKindNotFound, "unknown auth provider %q", provider)
	}
	return p, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
