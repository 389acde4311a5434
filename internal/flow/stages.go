// Package flow drives the staged conversation protocol over the reliable
// control channel.
package flow

// StageKey names one step of the guided conversation.
type StageKey string

// Stage is an immutable step in the fixed conversation sequence. The
// ordinal is the sole source of truth for progress.
type Stage struct {
	Key     StageKey
	Ordinal int
}

// Stages is the ordered, startup-fixed stage sequence.
type Stages struct {
	ordered []Stage
	byKey   map[StageKey]int
}

// NewStages builds a sequence from keys in order.
func NewStages(keys ...StageKey) Stages {
	s := Stages{byKey: make(map[StageKey]int, len(keys))}
	for i, k := range keys {
		s.ordered = append(s.ordered, Stage{Key: k, Ordinal: i})
		s.byKey[k] = i
	}
	return s
}

// DefaultStages is the onboarding call flow.
func DefaultStages() Stages {
	return NewStages("introduction", "payment", "kyc")
}

// OrdinalOf looks up a stage ordinal by key.
func (s Stages) OrdinalOf(key StageKey) (int, bool) {
	ord, ok := s.byKey[key]
	return ord, ok
}

// At returns the stage at the given ordinal.
func (s Stages) At(ordinal int) (Stage, bool) {
	if ordinal < 0 || ordinal >= len(s.ordered) {
		return Stage{}, false
	}
	return s.ordered[ordinal], true
}

// First returns the initial stage. Panics on an empty sequence, which is a
// construction error.
func (s Stages) First() Stage {
	return s.ordered[0]
}

// Len returns the number of stages.
func (s Stages) Len() int {
	return len(s.ordered)
}
