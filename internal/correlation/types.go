// Package correlation implements the pairwise RSSI-stream correlation
// engine: timestamp/sliding-window alignment, Pearson correlation, the
// stationary-proxy heuristic, and verdict/severity classification.
package correlation

import "time"

// Point is one (timestamp, rssi) observation from a stream, reduced to
// the fields the alignment and Pearson math need.
type Point struct {
	Timestamp time.Time
	RSSI      float64
}

// AlignmentStrategy records which alignment path produced a Result.
type AlignmentStrategy string

const (
	StrategyTimestamp     AlignmentStrategy = "timestamp"
	StrategySlidingWindow AlignmentStrategy = "sliding_window"
	StrategyInsufficient  AlignmentStrategy = "insufficient_data"
)

// VerdictReason names why a pair was (or wasn't) flagged suspicious.
type VerdictReason string

const (
	ReasonHighCorrelation      VerdictReason = "high_correlation"
	ReasonHighButDistant       VerdictReason = "high_correlation_but_distant"
	ReasonStationaryProxy      VerdictReason = "stationary_proxy"
	ReasonModerateSameLocation VerdictReason = "moderate_correlation_same_location"
	ReasonNone                 VerdictReason = "none"
	ReasonInsufficientData     VerdictReason = "insufficient_data"
)

// Severity classifies how confident a suspicious verdict is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// PairResult is the full per-pair output of AnalyzePair, carrying enough
// detail for both the anomaly service and for audit logging.
type PairResult struct {
	Strategy      AlignmentStrategy
	AlignedLength int

	Correlation  float64
	ZeroVariance bool

	MeanA, MeanB     float64
	StdDevA, StdDevB float64
	MeanDelta        float64

	Suspicious bool
	Reason     VerdictReason
	Severity   Severity
}
