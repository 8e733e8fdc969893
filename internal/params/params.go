// Package params holds the operator-adjustable machine parameters and keeps
// every value within its bounds.
package params

import "sync"

// Name identifies a parameter.
type Name string

const (
	BagLength Name = "bag_length"
	Speed     Name = "speed"
)

// Parameter is a bounded integer setting.
type Parameter struct {
	Name  Name   `json:"name"`
	Unit  string `json:"unit"`
	Value int    `json:"value"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Clamp limits v to the parameter's bounds.
func Clamp(p Parameter, v int) int {
	return max(p.Min, min(p.Max, v))
}

// Adjust returns p with its value moved by delta and clamped.
func Adjust(p Parameter, delta int) Parameter {
	p.Value = Clamp(p, p.Value+delta)
	return p
}

// InRange reports whether v lies within the parameter's bounds.
func InRange(p Parameter, v int) bool {
	return v >= p.Min && v <= p.Max
}

// NewBagLength returns the bag length parameter, in centimetres, at its minimum.
func NewBagLength() Parameter {
	return Parameter{Name: BagLength, Unit: "cm", Value: 15, Min: 15, Max: 40}
}

// NewSpeed returns the bags-per-minute parameter at its minimum.
func NewSpeed() Parameter {
	return Parameter{Name: Speed, Unit: "BPM", Value: 20, Min: 20, Max: 72}
}

// Store holds the live parameters. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[Name]Parameter
}

// NewStore returns a store with bag length and speed at their minimums.
func NewStore() *Store {
	return &Store{
		values: map[Name]Parameter{
			BagLength: NewBagLength(),
			Speed:     NewSpeed(),
		},
	}
}

// Get returns a copy of the named parameter.
func (s *Store) Get(name Name) Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Value returns the current value of the named parameter.
func (s *Store) Value(name Name) int {
	return s.Get(name).Value
}

// Set stores v clamped to bounds and reports whether clamping changed it.
func (s *Store) Set(name Name, v int) (Parameter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.values[name]
	p.Value = Clamp(p, v)
	s.values[name] = p
	return p, p.Value != v
}

// Adjust moves the named parameter by delta, clamped, and returns the new value.
func (s *Store) Adjust(name Name, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Adjust(s.values[name], delta)
	s.values[name] = p
	return p.Value
}

// All returns copies of every parameter.
func (s *Store) All() map[Name]Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Name]Parameter, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
