// Package analyzer defines the pluggable per-flow analyzer contract the
// Session Manager dispatches packets to, and the ordered registry of
// analyzer descriptors.
package analyzer

import "github.com/m-lab/tcp-reorder/packet"

// State is the opaque per-flow state an analyzer owns. Each analyzer
// defines its own concrete type and type-asserts it back out of the
// interface{} the manager hands to Destroy/OnPacket.
type State interface{}

// Descriptor is the capability triple a registered analyzer supplies.
// Create is called exactly once per flow, at flow creation; Destroy
// exactly once, at flow teardown; OnPacket once per packet delivered to
// an already-created flow, in registration order relative to other
// analyzers.
type Descriptor struct {
	Name     string
	Create   func() State
	Destroy  func(State)
	OnPacket func(State, packet.Packet, packet.Direction)
}

// Registry holds descriptors in the order they were registered. Order is
// user-visible: it determines both each flow's analyzer-state slot index
// and analyzer delivery order.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends d and returns its stable slot index.
func (r *Registry) Register(d Descriptor) int {
	r.descriptors = append(r.descriptors, d)
	return len(r.descriptors) - 1
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// CreateAll returns a fresh per-flow state slice, one entry per registered
// analyzer in registration order.
func (r *Registry) CreateAll() []State {
	states := make([]State, len(r.descriptors))
	for i, d := range r.descriptors {
		if d.Create != nil {
			states[i] = d.Create()
		}
	}
	return states
}

// DestroyAll tears down every entry of states, which must have been
// produced by CreateAll on this same registry.
func (r *Registry) DestroyAll(states []State) {
	for i, d := range r.descriptors {
		if d.Destroy != nil {
			d.Destroy(states[i])
		}
	}
}

// Dispatch delivers p to every registered analyzer's OnPacket, in
// registration order.
func (r *Registry) Dispatch(states []State, p packet.Packet, dir packet.Direction) {
	for i, d := range r.descriptors {
		if d.OnPacket != nil {
			d.OnPacket(states[i], p, dir)
		}
	}
}
