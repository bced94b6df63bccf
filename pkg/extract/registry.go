package extract

// Registry is the ordered collection of extracted steps.
//
// Duplicate ids across documents follow a last-body-wins policy: a
// later Add overwrites the stored body and source in place, but the
// step keeps the ordinal position of its first appearance in the global
// scan order.
type Registry struct {
	steps []Step
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add inserts a step, or overwrites the body/source/line of an existing
// step with the same id while keeping its recorded position.
func (r *Registry) Add(s Step) {
	if i, ok := r.index[s.ID]; ok {
		r.steps[i].Body = s.Body
		r.steps[i].Source = s.Source
		r.steps[i].Line = s.Line
		return
	}
	r.index[s.ID] = len(r.steps)
	r.steps = append(r.steps, s)
}

// List returns the steps in first-appearance order. The returned slice
// is shared; callers must not mutate it.
func (r *Registry) List() []Step {
	return r.steps
}

// Lookup returns the step with the given id.
func (r *Registry) Lookup(id string) (Step, bool) {
	i, ok := r.index[id]
	if !ok {
		return Step{}, false
	}
	return r.steps[i], true
}

// Len returns the number of distinct steps.
func (r *Registry) Len() int {
	return len(r.steps)
}
