/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Per-activity cache of abstract states. States are registered on first visit and
kept for the whole session.
*/

package abstract

// Registry caches abstract states per activity
type Registry struct {
	byActivity map[string][]*State
	order      []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byActivity: make(map[string][]*State)}
}

// Lookup returns the cached state equal to s for the activity, or nil
func (r *Registry) Lookup(activity string, s *State) *State {
	for _, cached := range r.byActivity[activity] {
		if cached.Equals(s) {
			return cached
		}
	}
	return nil
}

// Register caches s for the activity. It returns false if an equal state was already known.
func (r *Registry) Register(activity string, s *State) bool {
	if r.Lookup(activity, s) != nil {
		return false
	}
	if _, ok := r.byActivity[activity]; !ok {
		r.order = append(r.order, activity)
	}
	r.byActivity[activity] = append(r.byActivity[activity], s)
	return true
}

// Known reports whether the activity has been seen
func (r *Registry) Known(activity string) bool {
	_, ok := r.byActivity[activity]
	return ok
}

// Touch records the activity without registering a state
func (r *Registry) Touch(activity string) {
	if _, ok := r.byActivity[activity]; !ok {
		r.order = append(r.order, activity)
		r.byActivity[activity] = nil
	}
}

// Activities returns the seen activities in first-seen order
func (r *Registry) Activities() []string {
	return append([]string(nil), r.order...)
}

// States returns the cached states of an activity
func (r *Registry) States(activity string) []*State {
	return append([]*State(nil), r.byActivity[activity]...)
}
