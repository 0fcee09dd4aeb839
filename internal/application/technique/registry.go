package technique

import (
	"github.com/promptdial/promptdial/internal/domain"
)

// Flavor names the rendering style of a generated variant.
type Flavor string

const (
	FlavorBasic     Flavor = "basic"
	FlavorExtended  Flavor = "extended"
	FlavorFormatted Flavor = "formatted"
)

// GenerateInput carries everything a generator may consult.
type GenerateInput struct {
	BasePrompt     string
	Classification domain.Classification
	Examples       []string
	Flavor         Flavor
}

// Generated is a single rendered variant before validation and costing.
type Generated struct {
	Prompt      string
	Temperature float64
}

// Descriptor is the static description of one technique: what it is good
// for, whether it needs retrieved context, and how it renders prompts.
// New techniques register here; dispatch code never changes.
type Descriptor struct {
	Name           domain.Technique
	BestFor        map[domain.TaskType]bool
	NeedsRetrieval bool
	Flavors        []Flavor
	Generate       func(in GenerateInput) Generated
}

// TaskMatch reports whether the descriptor lists the task type.
func (d *Descriptor) TaskMatch(taskType domain.TaskType) bool {
	return d.BestFor[taskType]
}

// Registry holds the closed set of technique descriptors in a stable
// order. The order breaks score ties during selection.
type Registry struct {
	order       []domain.Technique
	descriptors map[domain.Technique]*Descriptor
}

// NewRegistry creates a registry populated with the full allow-list.
func NewRegistry() *Registry {
	r := &Registry{
		descriptors: make(map[domain.Technique]*Descriptor),
	}
	for _, d := range builtinDescriptors() {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d *Descriptor) {
	if _, exists := r.descriptors[d.Name]; exists {
		return
	}
	r.order = append(r.order, d.Name)
	r.descriptors[d.Name] = d
}

// Get returns the descriptor for a technique.
func (r *Registry) Get(name domain.Technique) (*Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}
