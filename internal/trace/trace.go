// Package trace defines the reasoning trace that must accompany every agent
// response, and a local SQLite archive for storing traces after a request
// completes. A response without a trace is invalid; the pipeline constructs
// one even on degraded paths.
package trace

// VerificationStatus is the overall verification level for factual content
// in a response.
type VerificationStatus string

const (
	Verified     VerificationStatus = "verified"
	Unverified   VerificationStatus = "unverified"
	Contradicted VerificationStatus = "contradicted"
)

// Valid reports whether s is one of the allowed verification statuses.
func (s VerificationStatus) Valid() bool {
	switch s {
	case Verified, Unverified, Contradicted:
		return true
	}
	return false
}

// Intent is the capability path chosen for a turn.
type Intent string

const (
	IntentAnswerGeneral Intent = "answer_general"
	IntentWeather       Intent = "weather"
	IntentCurrency      Intent = "currency"
	IntentWebSearch     Intent = "web_search"
	IntentClarify       Intent = "clarify"
	IntentOutOfScope    Intent = "out_of_scope"

	// IntentToolDispatch marks the provisional trace of a first reasoning
	// pass that requested tool execution.
	IntentToolDispatch Intent = "tool_dispatch"
)

// RoutingDecision records which path was chosen and why.
type RoutingDecision struct {
	Intent    Intent `json:"intent"`
	Rationale string `json:"rationale"`
}

// Support describes how the cited evidence relates to a claim.
type Support string

const (
	SupportSupported    Support = "supported"
	SupportContradicted Support = "contradicted"
	SupportUncertain    Support = "uncertain"
)

// SourceRef identifies a source or tool result consulted during reasoning.
type SourceRef struct {
	ID      int    `json:"id"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// EvidenceItem is a factual claim and how it is backed.
type EvidenceItem struct {
	Claim     string  `json:"claim"`
	Support   Support `json:"support"`
	SourceIDs []int   `json:"source_ids,omitempty"`
}

// EvidenceHistoryDegraded is the claim recorded when conversation history
// could not be fetched and the turn ran against an empty history.
const EvidenceHistoryDegraded = "conversation history unavailable; answered without prior turns"

// Trace is the structured record of how an answer was derived.
type Trace struct {
	Routing      RoutingDecision    `json:"routing"`
	Evidence     []EvidenceItem     `json:"evidence,omitempty"`
	Sources      []SourceRef        `json:"sources,omitempty"`
	Verification VerificationStatus `json:"verification"`
	Reasoning    string             `json:"reasoning,omitempty"`

	// Warnings collects non-fatal annotations added after the model produced
	// the trace, e.g. dropped duplicate metadata or a failed persistence.
	Warnings []string `json:"warnings,omitempty"`
}

// MarkDegradedHistory annotates the trace with the degraded-history flag.
// An answer produced without the conversation history cannot claim full
// verification, so a Verified status is demoted.
func (t *Trace) MarkDegradedHistory() {
	t.Evidence = append(t.Evidence, EvidenceItem{
		Claim:   EvidenceHistoryDegraded,
		Support: SupportUncertain,
	})
	if t.Verification == Verified {
		t.Verification = Unverified
	}
}

// AddWarning appends a non-fatal warning marker.
func (t *Trace) AddWarning(msg string) {
	t.Warnings = append(t.Warnings, msg)
}

// Normalize clamps an unknown verification status to Unverified so a trace
// never leaves the pipeline with an out-of-vocabulary status.
func (t *Trace) Normalize() {
	if !t.Verification.Valid() {
		t.Verification = Unverified
	}
}
