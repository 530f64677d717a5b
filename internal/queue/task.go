package queue

import "time"

// ReconcileTask asks the reconciler binary to run one bounded backfill pass.
// Produced by the webhook dispatcher when a status callback names a provider
// id no conversation knows about.
type ReconcileTask struct {
	// Since bounds how far back the pass looks.
	Since time.Time

	// Limit caps how many gateway messages the pass examines.
	Limit int

	// ProviderMessageID is the sid that triggered the pass, when known.
	ProviderMessageID string

	Attempt int
}
