package personality

// Resolver exposes total personality lookups. Unrecognized keys resolve to
// the default entry; neither lookup ever fails.
type Resolver interface {
	List() []Personality
	Resolve(id string) Personality
	VoiceID(id string) string
	SystemPrompt(id string) string
}

// TableResolver implements Resolver over an in-memory table.
type TableResolver struct {
	items    []Personality
	byID     map[string]Personality
	fallback Personality
}

// NewTableResolver builds a resolver from the supplied personalities. The
// entry matching DefaultID (or the first entry when absent) becomes the
// fallback for unrecognized keys.
func NewTableResolver(items []Personality) *TableResolver {
	r := &TableResolver{
		items: append([]Personality(nil), items...),
		byID:  make(map[string]Personality, len(items)),
	}
	for _, item := range r.items {
		r.byID[item.ID] = item
	}
	if def, ok := r.byID[DefaultID]; ok {
		r.fallback = def
	} else if len(r.items) > 0 {
		r.fallback = r.items[0]
	}
	return r
}

// List returns the configured personality table.
func (r *TableResolver) List() []Personality {
	return append([]Personality(nil), r.items...)
}

// Resolve returns the personality for id, or the fallback entry.
func (r *TableResolver) Resolve(id string) Personality {
	if p, ok := r.byID[id]; ok {
		return p
	}
	return r.fallback
}

// VoiceID maps a personality key to its synthesis voice.
func (r *TableResolver) VoiceID(id string) string {
	return r.Resolve(id).VoiceID
}

// SystemPrompt maps a personality key to its system prompt text.
func (r *TableResolver) SystemPrompt(id string) string {
	return r.Resolve(id).SystemPrompt
}
