package models

import "time"

// CandidateState tracks where a candidate sits in the outreach funnel.
// Transitions only move forward; Rejected and ContactExtracted are terminal.
type CandidateState string

const (
	StateDiscovered         CandidateState = "discovered"
	StateConnectionSent     CandidateState = "connection_sent"
	StateConnectionAccepted CandidateState = "connection_accepted"
	StateMessaged           CandidateState = "messaged"
	StateContactExtracted   CandidateState = "contact_extracted"
	StateRejected           CandidateState = "rejected"
)

var stateRank = map[CandidateState]int{
	StateDiscovered:         0,
	StateConnectionSent:     1,
	StateConnectionAccepted: 2,
	StateMessaged:           3,
	StateContactExtracted:   4,
}

func (s CandidateState) Terminal() bool {
	return s == StateRejected || s == StateContactExtracted
}

// CanTransitionTo reports whether moving from s to next keeps the funnel
// monotonic. Rejected is reachable from any non-terminal state.
func (s CandidateState) CanTransitionTo(next CandidateState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateRejected {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to > from
}

type Candidate struct {
	ID             int64
	ProfileURL     string
	Name           string
	Headline       string
	Company        string
	Location       string
	SourceCompany  string
	State          CandidateState
	DiscoveredAt   time.Time
	StateChangedAt time.Time
}

// FirstName returns the leading word of the display name, used when
// rendering templates and prompts.
func (c *Candidate) FirstName() string {
	name := c.Name
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}

// ActionKind identifies a rate-governed action class.
type ActionKind string

const (
	ActionConnect ActionKind = "connect"
	ActionMessage ActionKind = "message"
	ActionView    ActionKind = "view"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutreachRecord is one append-only audit row: an action attempted against
// a candidate at a given funnel stage, with its result.
type OutreachRecord struct {
	ID          string
	CandidateID int64
	Stage       string
	Result      Outcome
	Payload     string
	Reason      string
	CreatedAt   time.Time
}

const (
	StageConnect = "connect"
	StageMessage = "message"
	StageExtract = "extract"
)

// Conversation is the readable view of a message thread with a candidate.
// Inbound holds only messages written by the other party, oldest first.
type Conversation struct {
	Unread  bool
	Inbound []string
}

type Run struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   string
}
