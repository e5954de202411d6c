package types

// SettlementOutcome is the business outcome of a charge attempt against the
// external payment gateway. Infrastructure faults (network, timeout) are not
// outcomes; they surface as errors and are retried before being treated as
// declined.
type SettlementOutcome string

const (
	SettlementOutcomeSettled  SettlementOutcome = "settled"
	SettlementOutcomeDeclined SettlementOutcome = "declined"
)

func (o SettlementOutcome) String() string {
	return string(o)
}
