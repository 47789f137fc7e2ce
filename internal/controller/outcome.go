package controller

// Outcome is the terminal result of handling one message.
type Outcome string

// Message outcomes. They double as the metrics label.
const (
	OutcomeIgnored        Outcome = "ignored"
	OutcomeDropped        Outcome = "dropped"
	OutcomeInvalidPayload Outcome = "invalid_payload"
	OutcomePersistFailed  Outcome = "persist_failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomePublishFailed  Outcome = "publish_failed"
	OutcomeRecordFailed   Outcome = "record_failed"
	OutcomeActuated       Outcome = "actuated"
	OutcomePanicked       Outcome = "panicked"
)

// Actuated reports whether a watering command was published.
func (o Outcome) Actuated() bool {
	return o == OutcomeActuated || o == OutcomeRecordFailed
}

// Stage is a step of the per-message pipeline.
type Stage string

// Pipeline stages, in order.
const (
	StageReceived  Stage = "received"
	StageDecoded   Stage = "decoded"
	StagePersisted Stage = "persisted"
	StageDecided   Stage = "decided"
	StageActuated  Stage = "actuated"
)
