package correlation

import "math"

// Thresholds holds the configurable stationary-proxy and verdict
// thresholds. Defaults are the permissive values (8 dBm stddev, 12 dBm
// same-location delta); the tighter 3/5 pair can be dialed in through
// configuration.
type Thresholds struct {
	StationaryBothMaxStdDev   float64
	SameLocationMaxDeltaDBm   float64
	OneVeryStillMaxStdDev     float64
	HighCorrelationThreshold  float64
	ModerateCorrelationThresh float64
	CriticalSeverityThreshold float64
	DistantMuDeltaDBm         float64
}

// DefaultThresholds returns the default verdict thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StationaryBothMaxStdDev:   8,
		SameLocationMaxDeltaDBm:   12,
		OneVeryStillMaxStdDev:     3,
		HighCorrelationThreshold:  0.8,
		ModerateCorrelationThresh: 0.6,
		CriticalSeverityThreshold: 0.95,
		DistantMuDeltaDBm:         15,
	}
}

// classify applies the stationary-proxy heuristic and the priority-order
// verdict rule to one pair's statistics.
func classify(rho, meanA, meanB, stdA, stdB float64, t Thresholds) (reason VerdictReason, suspicious bool, severity Severity) {
	absRho := math.Abs(rho)
	muDelta := math.Abs(meanA - meanB)

	stationaryBoth := stdA < t.StationaryBothMaxStdDev && stdB < t.StationaryBothMaxStdDev
	sameLocation := muDelta <= t.SameLocationMaxDeltaDBm
	oneVeryStill := stdA < t.OneVeryStillMaxStdDev || stdB < t.OneVeryStillMaxStdDev
	bothRelativelyStill := stationaryBoth
	suspiciousStationary := (stationaryBoth && sameLocation) || (oneVeryStill && bothRelativelyStill && sameLocation)

	switch {
	case absRho >= t.HighCorrelationThreshold:
		if muDelta > t.DistantMuDeltaDBm {
			reason, suspicious = ReasonHighButDistant, false
		} else {
			reason, suspicious = ReasonHighCorrelation, true
		}
	case suspiciousStationary:
		reason, suspicious = ReasonStationaryProxy, true
	case absRho >= t.ModerateCorrelationThresh && sameLocation:
		reason, suspicious = ReasonModerateSameLocation, true
	default:
		reason, suspicious = ReasonNone, false
	}

	if !suspicious {
		return reason, false, ""
	}
	if absRho >= t.CriticalSeverityThreshold {
		return reason, true, SeverityCritical
	}
	return reason, true, SeverityWarning
}
