package correlation

import (
	"context"
	"testing"
	"time"
)

func TestAnalyzePairInsufficientData(t *testing.T) {
	base := time.Now()
	a := points(base, time.Second, make([]float64, 3))
	b := points(base, time.Second, make([]float64, 3))

	result := AnalyzePair(a, b, DefaultAlignOptions(), DefaultThresholds())
	if result.Strategy != StrategyInsufficient || result.Reason != ReasonInsufficientData {
		t.Fatalf("expected insufficient_data, got strategy=%v reason=%v", result.Strategy, result.Reason)
	}
}

func TestAnalyzeAllPairsFlagsProxyPair(t *testing.T) {
	base := time.Now()
	rssi := make([]float64, 20)
	for i := range rssi {
		rssi[i] = -60 + float64(i%5)
	}
	proxyPair := points(base, time.Second, rssi)
	independent := points(base, time.Second, []float64{
		-80, -40, -85, -35, -90, -30, -82, -38, -88, -32,
		-81, -41, -86, -36, -91, -31, -83, -39, -89, -33,
	})

	streams := []Stream{
		{StudentID: "s1", Points: proxyPair},
		{StudentID: "s2", Points: proxyPair},
		{StudentID: "s3", Points: independent},
	}

	reports, err := AnalyzeAllPairs(context.Background(), streams, DefaultAlignOptions(), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 pair reports for 3 streams, got %d", len(reports))
	}

	flagged := Flagged(reports)
	found := false
	for _, f := range flagged {
		if (f.StudentIDA == "s1" && f.StudentIDB == "s2") || (f.StudentIDA == "s2" && f.StudentIDB == "s1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the identical-signal pair to be flagged; flagged=%v", flagged)
	}
}

func TestAnalyzePairRecoversDelayedStartViaSlidingWindow(t *testing.T) {
	base := time.Now()

	values := make([]float64, 50)
	for i := range values {
		values[i] = -70 + float64((i*7)%23) // varied, aperiodic over the window
	}

	a := points(base, 5*time.Second, values)

	// The second phone started ~27s late, so its timestamps fall between
	// the first phone's 5s grid and the timestamp sweep finds no matches.
	delayed := make([]float64, 45)
	for i := range delayed {
		noise := 0.5
		if i%2 == 0 {
			noise = -0.5
		}
		delayed[i] = values[i+5] + noise
	}
	b := points(base.Add(27500*time.Millisecond), 5*time.Second, delayed)

	result := AnalyzePair(a, b, DefaultAlignOptions(), DefaultThresholds())
	if result.Strategy != StrategySlidingWindow {
		t.Fatalf("expected the sliding-window fallback to carry the pair, got %v", result.Strategy)
	}
	if result.Correlation < 0.95 {
		t.Fatalf("expected the fallback to recover the shifted signal with rho > 0.95, got %v", result.Correlation)
	}
	if !result.Suspicious || result.Reason != ReasonHighCorrelation {
		t.Fatalf("expected a high_correlation verdict, got reason=%v suspicious=%v", result.Reason, result.Suspicious)
	}
}
