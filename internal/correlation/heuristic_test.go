package correlation

import "testing"

func TestClassifyHighCorrelationSameLocation(t *testing.T) {
	reason, suspicious, severity := classify(0.9, -60, -62, 5, 6, DefaultThresholds())
	if !suspicious || reason != ReasonHighCorrelation {
		t.Fatalf("expected high_correlation suspicious verdict, got reason=%v suspicious=%v", reason, suspicious)
	}
	if severity != SeverityWarning {
		t.Fatalf("expected warning severity below the critical threshold, got %v", severity)
	}
}

func TestClassifyHighCorrelationButDistantIsNotSuspicious(t *testing.T) {
	reason, suspicious, _ := classify(0.9, -40, -70, 5, 6, DefaultThresholds())
	if suspicious {
		t.Fatalf("expected high_correlation_but_distant to not be suspicious")
	}
	if reason != ReasonHighButDistant {
		t.Fatalf("expected high_correlation_but_distant reason, got %v", reason)
	}
}

func TestClassifyStationaryProxy(t *testing.T) {
	reason, suspicious, _ := classify(0.3, -60, -61, 2, 2, DefaultThresholds())
	if !suspicious || reason != ReasonStationaryProxy {
		t.Fatalf("expected stationary_proxy verdict, got reason=%v suspicious=%v", reason, suspicious)
	}
}

func TestClassifyModerateSameLocation(t *testing.T) {
	reason, suspicious, _ := classify(0.65, -60, -65, 10, 10, DefaultThresholds())
	if !suspicious || reason != ReasonModerateSameLocation {
		t.Fatalf("expected moderate_correlation_same_location verdict, got reason=%v suspicious=%v", reason, suspicious)
	}
}

func TestClassifyNone(t *testing.T) {
	reason, suspicious, severity := classify(0.1, -60, -90, 10, 10, DefaultThresholds())
	if suspicious || reason != ReasonNone || severity != "" {
		t.Fatalf("expected no verdict, got reason=%v suspicious=%v severity=%v", reason, suspicious, severity)
	}
}

func TestClassifyCriticalSeverityBoundary(t *testing.T) {
	thresholds := DefaultThresholds()
	_, _, below := classify(0.9499999, -60, -61, 5, 5, thresholds)
	if below != SeverityWarning {
		t.Fatalf("expected warning just below the critical threshold, got %v", below)
	}
	_, _, at := classify(thresholds.CriticalSeverityThreshold, -60, -61, 5, 5, thresholds)
	if at != SeverityCritical {
		t.Fatalf("expected critical at the threshold, got %v", at)
	}
}
