package store

import "time"

// Type classifies a knowledge chunk.
type Type string

const (
	TypePattern    Type = "pattern"
	TypePreference Type = "preference"
	TypeDecision   Type = "decision"
	TypeMistake    Type = "mistake"
	TypeWorkaround Type = "workaround"
	TypeConflict   Type = "conflict"
)

// Scope indicates whether knowledge is user-wide or tied to a project.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// Trigger is the lifecycle event that caused extraction.
type Trigger string

const (
	TriggerPreCompact Trigger = "pre_compact"
	TriggerSessionEnd Trigger = "session_end"
	TriggerManual     Trigger = "manual"
)

// ValidType reports whether t is one of the known knowledge types.
func ValidType(t Type) bool {
	switch t {
	case TypePattern, TypePreference, TypeDecision, TypeMistake, TypeWorkaround, TypeConflict:
		return true
	}
	return false
}

// ValidScope reports whether s is one of the two known scopes.
func ValidScope(s Scope) bool {
	return s == ScopeGlobal || s == ScopeProject
}

// ValidTrigger reports whether t is one of the known extraction triggers.
func ValidTrigger(t Trigger) bool {
	switch t {
	case TriggerPreCompact, TriggerSessionEnd, TriggerManual:
		return true
	}
	return false
}

// Source records the provenance of a chunk. Immutable after insert.
type Source struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Trigger   Trigger   `json:"trigger"`
}

// Chunk is a single unit of extracted knowledge.
type Chunk struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Type        Type      `json:"type"`
	Scope       Scope     `json:"scope"`
	Project     *string   `json:"project,omitempty"` // non-nil iff Scope == ScopeProject
	Tags        []string  `json:"tags"`
	Source      Source    `json:"source"`
	Confidence  float64   `json:"confidence"` // [0,1]
	AccessCount int       `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input holds the caller-supplied fields for a new chunk, before the
// store assigns id, access count and timestamps.
type Input struct {
	Content    string   `json:"content"`
	Type       Type     `json:"type"`
	Scope      Scope    `json:"scope"`
	Project    *string  `json:"project,omitempty"`
	Tags       []string `json:"tags"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
}

// Stats holds aggregate counts for one scope partition.
type Stats struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	ByScope map[string]int `json:"by_scope"`
}

// Filters narrows a metadata search. Zero values mean "no filter";
// filters are conjunctive.
type Filters struct {
	Scope   Scope
	Type    Type
	Project string
	Limit   int // default 20
}
