package correlation

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Stream is the minimal shape the engine needs from a model.RssiStream —
// kept decoupled from the model package so this package has zero
// dependencies beyond the standard library and errgroup.
type Stream struct {
	StudentID string
	Points    []Point
}

// PairReport is one pair's full result plus the identities of the two
// students involved, the unit AnalyzeAllPairs emits.
type PairReport struct {
	StudentIDA string
	StudentIDB string
	Result     PairResult
}

// AnalyzePair aligns and scores exactly one pair of streams.
func AnalyzePair(a, b []Point, opts AlignOptions, thresholds Thresholds) PairResult {
	alignedA, alignedB, strategy := Align(a, b, opts)
	if strategy == StrategyInsufficient {
		return PairResult{Strategy: StrategyInsufficient, Reason: ReasonInsufficientData}
	}

	rho, zeroVariance := Pearson(alignedA, alignedB)
	meanA, meanB := mean(alignedA), mean(alignedB)
	stdA, stdB := stdDev(alignedA), stdDev(alignedB)

	reason, suspicious, severity := classify(rho, meanA, meanB, stdA, stdB, thresholds)

	return PairResult{
		Strategy:      strategy,
		AlignedLength: len(alignedA),
		Correlation:   rho,
		ZeroVariance:  zeroVariance,
		MeanA:         meanA,
		MeanB:         meanB,
		StdDevA:       stdA,
		StdDevB:       stdB,
		MeanDelta:     meanA - meanB,
		Suspicious:    suspicious,
		Reason:        reason,
		Severity:      severity,
	}
}

// AnalyzeAllPairs computes AnalyzePair for every N*(N-1)/2 pair among
// streams, bounded by a worker pool sized to the machine. ctx governs the
// per-group CPU budget; if it is cancelled mid-sweep, AnalyzeAllPairs
// returns the reports computed so far and the context's error.
func AnalyzeAllPairs(ctx context.Context, streams []Stream, opts AlignOptions, thresholds Thresholds) ([]PairReport, error) {
	type job struct {
		i, j int
	}
	var jobs []job
	for i := 0; i < len(streams); i++ {
		for j := i + 1; j < len(streams); j++ {
			jobs = append(jobs, job{i, j})
		}
	}

	reports := make([]PairReport, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for idx, jb := range jobs {
		idx, jb := idx, jb
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			result := AnalyzePair(streams[jb.i].Points, streams[jb.j].Points, opts, thresholds)
			reports[idx] = PairReport{
				StudentIDA: streams[jb.i].StudentID,
				StudentIDB: streams[jb.j].StudentID,
				Result:     result,
			}
			return nil
		})
	}

	err := g.Wait()
	return reports, err
}

// Flagged filters reports down to the suspicious subset.
func Flagged(reports []PairReport) []PairReport {
	var out []PairReport
	for _, r := range reports {
		if r.Result.Suspicious {
			out = append(out, r)
		}
	}
	return out
}
