// Package types defines the shared data model for the eternal memory
// subsystem. A MemoryRecord is one persisted, versioned statement about a
// user; records are never physically deleted, only retired through status
// transitions.
package types

import "time"

// Category is the semantic bucket a fact belongs to. The vocabulary is fixed:
// the extraction prompt is written against these exact codes.
type Category = string

const (
	CategoryIdentidade  Category = "IDENTIDADE"  // name, age, profession, where they live
	CategoryFamilia     Category = "FAMILIA"     // spouse, children, parents, siblings
	CategoryEvento      Category = "EVENTO"      // weddings, births, losses, moves
	CategoryLuta        Category = "LUTA"        // recurring struggles
	CategoryVitoria     Category = "VITORIA"     // victories, testimonies
	CategoryPreferencia Category = "PREFERENCIA" // how they like to be treated
	CategoryFe          Category = "FE"          // denomination, conversion, church
	CategoryContexto    Category = "CONTEXTO"    // current life situation
)

// Categories lists every valid category code.
var Categories = []Category{
	CategoryIdentidade,
	CategoryFamilia,
	CategoryEvento,
	CategoryLuta,
	CategoryVitoria,
	CategoryPreferencia,
	CategoryFe,
	CategoryContexto,
}

// IsValidCategory reports whether the given string is a known category code.
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// RecordStatus is the lifecycle state of a memory record. Transitions are
// one-directional and terminal: active → superseded and active → deactivated.
// No record ever returns to active.
type RecordStatus string

const (
	// StatusActive marks the single live record for a
	// (user, category, normalized fact) identity.
	StatusActive RecordStatus = "active"

	// StatusSuperseded marks a record retired in favor of a newer,
	// contradicting one. The replacing record points back via SupersedesID.
	StatusSuperseded RecordStatus = "superseded"

	// StatusDeactivated marks a record explicitly retired (a user-initiated
	// "forget this", or the extractor flagging the fact as no longer true).
	StatusDeactivated RecordStatus = "deactivated"
)

// IsTerminal reports whether the status is one of the retired states.
func (s RecordStatus) IsTerminal() bool {
	return s == StatusSuperseded || s == StatusDeactivated
}

// CanTransitionTo reports whether the transition s → next is legal.
// Only active records can move, and only into a terminal state.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	return s == StatusActive && next.IsTerminal()
}

// Action is the write intent attached to an extracted fact.
type Action string

const (
	// ActionUpsert creates the fact or reinforces an identical existing one.
	// This is the default when the extractor omits the field.
	ActionUpsert Action = "upsert"

	// ActionSupersede retires the identical existing fact and creates a new
	// record that supersedes it.
	ActionSupersede Action = "supersede"

	// ActionDeactivate retires an existing record without a replacement.
	ActionDeactivate Action = "deactivate"
)

// IsValidAction reports whether the given string is a known action.
func IsValidAction(a string) bool {
	switch Action(a) {
	case ActionUpsert, ActionSupersede, ActionDeactivate:
		return true
	}
	return false
}

// MemoryRecord is the sole persisted entity of the subsystem: one fact the
// companion knows about a user.
type MemoryRecord struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Category Category `json:"categoria"`

	// Fact is the human-readable statement and the source of truth.
	Fact string `json:"fato"`

	// FactNormalized is the dedup key, derived from Fact via normalize.Text.
	// Two facts are the same identity iff their normalized forms are equal
	// within the same (user, category).
	FactNormalized string `json:"fato_normalizado"`

	Details    string `json:"detalhes,omitempty"`
	Importance int    `json:"importancia"` // 1-10, author-assigned salience

	// Mentions counts how often this fact (or its normalized duplicate) has
	// been reinforced. Monotonically non-decreasing, starts at 1.
	Mentions        int       `json:"mencoes"`
	LastMentionedAt time.Time `json:"ultima_mencao"`

	Status RecordStatus `json:"status"`

	// SupersedesID, when set, references the record that was active
	// immediately before this write and is now superseded.
	SupersedesID string `json:"supersedes_id,omitempty"`

	// Confidence is the extraction confidence in [0,1]. It never decreases
	// across updates to the same identity.
	Confidence float64 `json:"confidence"`

	// Validated is set from the management surface when the user confirms
	// the fact is accurate.
	Validated bool `json:"validado"`

	OriginConversationID string `json:"origem_conversa_id,omitempty"`

	// Payload carries free-form structured extras from the extractor.
	Payload map[string]interface{} `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClampImportance forces an importance value into the valid 1-10 range,
// mapping out-of-range extractor output to the nearest bound and zero (unset)
// to the default of 5.
func ClampImportance(v int) int {
	switch {
	case v == 0:
		return 5
	case v < 1:
		return 1
	case v > 10:
		return 10
	}
	return v
}

// ClampConfidence forces a confidence value into [0,1], mapping zero (unset)
// to the default of 0.8.
func ClampConfidence(v float64) float64 {
	switch {
	case v == 0:
		return 0.8
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
