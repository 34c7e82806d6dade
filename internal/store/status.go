package store

import "fmt"

// SessionStatus is the lifecycle state of a parsing session.
type SessionStatus string

// Session status values. Incomplete is the only non-terminal resumable
// state; at most one Incomplete session exists per distributor.
const (
	SessionIncomplete SessionStatus = "incomplete"
	SessionParsed     SessionStatus = "parsed"
	SessionPublished  SessionStatus = "published"
	SessionFailed     SessionStatus = "failed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionIncomplete, SessionParsed, SessionPublished, SessionFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s SessionStatus) Terminal() bool {
	return s == SessionPublished || s == SessionFailed
}

// sessionTransitions is the closed transition table. A publish retry is
// modeled by the session simply staying Parsed, not by a transition.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionIncomplete: {SessionParsed, SessionFailed},
	SessionParsed:     {SessionPublished, SessionFailed},
	SessionPublished:  {},
	SessionFailed:     {},
}

// CanTransition reports whether from -> to is a legal session transition.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an error describing an illegal transition, so
// stores can reject bad status updates at the boundary.
func CheckTransition(from, to SessionStatus) error {
	if !from.Valid() {
		return fmt.Errorf("invalid session status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("invalid session status %q", to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal session transition %s -> %s", from, to)
	}
	return nil
}

// CatalogueStatus is the lifecycle state of a catalogue index entry.
type CatalogueStatus string

// Catalogue entry status values. PendingReview and AiVerified belong to
// the external verification workflow; this service only reads them to pick
// entries eligible for detail parsing.
const (
	CatalogueNew           CatalogueStatus = "new"
	CatalogueRelevant      CatalogueStatus = "relevant"
	CatalogueNotRelevant   CatalogueStatus = "not_relevant"
	CataloguePendingReview CatalogueStatus = "pending_review"
	CatalogueAiVerified    CatalogueStatus = "ai_verified"
	CatalogueProcessed     CatalogueStatus = "processed"
)

// Valid reports whether s is a known catalogue status.
func (s CatalogueStatus) Valid() bool {
	switch s {
	case CatalogueNew, CatalogueRelevant, CatalogueNotRelevant,
		CataloguePendingReview, CatalogueAiVerified, CatalogueProcessed:
		return true
	}
	return false
}
