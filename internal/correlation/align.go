package correlation

import (
	"math"
	"sort"
	"time"
)

// defaultToleranceMs is the maximum |t_ai - t_bj| for a timestamp match.
// Callers override it via AlignOptions; cmd/server wires the configured
// value in.
const defaultToleranceMs = 2000

// MinAlignedSamples is the floor below which a correlation is reported as
// insufficient_data rather than computed.
const MinAlignedSamples = 10

// DefaultSlidingWindowMax caps the sliding-window width.
const DefaultSlidingWindowMax = 60

// AlignOptions parameterizes alignment with policy-configurable values.
type AlignOptions struct {
	ToleranceMs      int64
	MinAligned       int
	SlidingWindowMax int
}

// DefaultAlignOptions returns the default alignment thresholds.
func DefaultAlignOptions() AlignOptions {
	return AlignOptions{
		ToleranceMs:      defaultToleranceMs,
		MinAligned:       MinAlignedSamples,
		SlidingWindowMax: DefaultSlidingWindowMax,
	}
}

// Align aligns two point series using timestamp alignment first, falling
// back to sliding-window alignment if too few matches are found. It
// returns the paired vectors and which strategy won.
func Align(a, b []Point, opts AlignOptions) (alignedA, alignedB []float64, strategy AlignmentStrategy) {
	sa := sortedCopy(a)
	sb := sortedCopy(b)

	alignedA, alignedB = timestampAlign(sa, sb, opts.ToleranceMs)
	if len(alignedA) >= opts.MinAligned {
		return alignedA, alignedB, StrategyTimestamp
	}

	alignedA, alignedB = slidingWindowAlign(sa, sb, opts.SlidingWindowMax)
	if len(alignedA) >= opts.MinAligned {
		return alignedA, alignedB, StrategySlidingWindow
	}

	return nil, nil, StrategyInsufficient
}

func sortedCopy(p []Point) []Point {
	out := make([]Point, len(p))
	copy(out, p)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// timestampAlign performs the two-pointer sweep: advance whichever
// pointer has the earlier timestamp, emit a pair when the gap is within
// tolerance, and consume both samples so each is used at most once.
func timestampAlign(a, b []Point, toleranceMs int64) (outA, outB []float64) {
	tolerance := time.Duration(toleranceMs) * time.Millisecond
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		delta := a[i].Timestamp.Sub(b[j].Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance {
			outA = append(outA, a[i].RSSI)
			outB = append(outB, b[j].RSSI)
			i++
			j++
			continue
		}
		if a[i].Timestamp.Before(b[j].Timestamp) {
			i++
		} else {
			j++
		}
	}
	return outA, outB
}

// slidingWindowAlign treats both series as unlabeled ordered vectors and
// runs two sweeps: every w-wide window of a against the head of b, and
// every w-wide window of b against the head of a. The window with the
// highest |Pearson| across both directions wins, so an alignment sitting
// late inside either series is found regardless of which one is longer.
func slidingWindowAlign(a, b []Point, maxWindow int) (outA, outB []float64) {
	w := len(a)
	if len(b) < w {
		w = len(b)
	}
	if w > maxWindow {
		w = maxWindow
	}
	if w < 2 {
		return nil, nil
	}

	va := vecOf(a)
	vb := vecOf(b)

	bestAbs := -1.0
	for offset := 0; offset+w <= len(va); offset++ {
		window := va[offset : offset+w]
		corr, _ := Pearson(window, vb[:w])
		if math.Abs(corr) > bestAbs {
			bestAbs = math.Abs(corr)
			outA = window
			outB = vb[:w]
		}
	}
	for offset := 0; offset+w <= len(vb); offset++ {
		window := vb[offset : offset+w]
		corr, _ := Pearson(va[:w], window)
		if math.Abs(corr) > bestAbs {
			bestAbs = math.Abs(corr)
			outA = va[:w]
			outB = window
		}
	}
	return outA, outB
}

func vecOf(p []Point) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = v.RSSI
	}
	return out
}
