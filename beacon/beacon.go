// Package beacon scores a candidate network-communication pair for how
// strongly it resembles periodic, machine-generated command-and-control
// traffic. Scoring is deterministic and purely functional over the caller's
// in-memory series: nothing is persisted and nothing is shared between
// invocations, so many candidates may be scored concurrently.
package beacon

import (
	"errors"
	"math"

	"github.com/activecm/beaconsift/config"
	"github.com/activecm/beaconsift/util"
)

var ErrInvalidDatasetTimeRange = errors.New("invalid dataset timerange: min ts is greater than or equal to max ts")
var ErrInvalidCandidateTimeRange = errors.New("invalid candidate timerange: min ts is greater than or equal to max ts")
var ErrInvalidScoreThresholds = errors.New("scoring thresholds must be at least 1")
var ErrInsufficientData = errors.New("not enough data points to score candidate")
var ErrInputSliceEmpty = errors.New("input slice must not be empty")

// CandidateSeries holds the two ordered numeric sequences for one candidate
// pair. The sequences are sorted independently by their own value, not as
// paired tuples: the size at index i does not correspond to the timestamp at
// index i. Timing regularity and size regularity are scored as separate
// marginal distributions.
type CandidateSeries struct {
	Timestamps []float64 // unix seconds, ascending
	ByteSizes  []int64   // originator ip bytes per connection, ascending
}

// ObservationWindow holds the timestamp bounds used to normalize coverage.
// DatasetMin/DatasetMax span the entire ingested dataset, not just this
// candidate; CandidateMin/CandidateMax are the candidate's own first and last
// timestamps.
type ObservationWindow struct {
	DatasetMin   float64
	DatasetMax   float64
	CandidateMin float64
	CandidateMax float64
}

// ScoreReport carries the four sub-scores and the composite score, plus the
// diagnostic values an operator needs to sanity-check a candidate.
type ScoreReport struct {
	Score          float64
	TimestampScore float64
	DataSizeScore  float64
	HistogramScore float64
	DurationScore  float64

	// timestamp diagnostics
	TSSkew           float64
	TSMadm           float64
	TSIntervals      []int64
	TSIntervalCounts []int64
	TSMode           int64
	TSModeCount      int64

	// data size diagnostics
	DSSkew      float64
	DSMadm      float64
	DSSizes     []int64
	DSCounts    []int64
	DSMode      int64
	DSModeCount int64

	// histogram diagnostics
	BucketDivs []int64
	FreqList   []int
	TotalBars  int
	LongestRun int

	// duration diagnostics
	Coverage    float64
	Consistency float64
}

// Analyze runs the full scoring pipeline for a single candidate and returns
// its report. All errors are fatal for this candidate only; a batch driver
// must isolate them so one bad candidate does not halt the others.
func Analyze(series CandidateSeries, window ObservationWindow, cfg config.BeaconScoring) (ScoreReport, error) {
	var report ScoreReport

	// verify that the dataset window is sane before doing any math
	if window.DatasetMax <= window.DatasetMin {
		return report, ErrInvalidDatasetTimeRange
	}
	if window.CandidateMax <= window.CandidateMin {
		return report, ErrInvalidCandidateTimeRange
	}

	// fail fast on candidates that are too small to score rather than
	// silently returning a zero score
	if len(series.Timestamps) < 2 || len(series.ByteSizes) < 2 {
		return report, ErrInsufficientData
	}

	// calculate timestamp score and interval metrics
	tsScore, tsSkew, tsMadm, intervals, intervalCounts, tsMode, tsModeCount, err := getTimestampScore(series.Timestamps)
	if err != nil {
		return report, err
	}

	// calculate data size score and metrics
	dsScore, dsSkew, dsMadm, dsSizes, dsCounts, dsMode, dsModeCount, err := getDataSizeScore(series.ByteSizes)
	if err != nil {
		return report, err
	}

	// calculate histogram score over the full dataset window
	start := int64(math.Floor(window.DatasetMin))
	end := int64(math.Floor(window.DatasetMax))

	bucketDivs, freqList, totalBars, longestRun, histScore, err := getHistogramScore(
		start, end, series.Timestamps,
		cfg.HistogramModeSensitivity, int(cfg.HistogramBimodalOutlierRemoval),
		int(cfg.HistogramBimodalMinHoursSeen), int(cfg.HistogramBucketCount))
	if err != nil {
		return report, err
	}

	// calculate duration score from the candidate's own span and run length
	coverage, consistency, durScore, err := getDurationScore(
		start, end,
		int64(window.CandidateMin), int64(window.CandidateMax),
		totalBars, longestRun,
		int(cfg.DurationMinHoursSeen), int(cfg.DurationConsistencyIdealHoursSeen))
	if err != nil {
		return report, err
	}

	// the skewness sub-score is not clamped and can drag the timestamp or
	// data size score below zero; the composite is defined over [0,1] so
	// clamp here and keep the raw skew in the report
	clampedTsScore := clampScore(tsScore)
	clampedDsScore := clampScore(dsScore)

	// calculate the overall beacon score from the weighted subscores
	score, err := getBeaconScore(clampedTsScore, cfg.TimestampScoreWeight,
		clampedDsScore, cfg.DatasizeScoreWeight,
		durScore, cfg.DurationScoreWeight,
		histScore, cfg.HistogramScoreWeight)
	if err != nil {
		return report, err
	}

	report = ScoreReport{
		Score:          score,
		TimestampScore: clampedTsScore,
		DataSizeScore:  clampedDsScore,
		HistogramScore: histScore,
		DurationScore:  durScore,

		TSSkew:           tsSkew,
		TSMadm:           tsMadm,
		TSIntervals:      intervals,
		TSIntervalCounts: intervalCounts,
		TSMode:           tsMode,
		TSModeCount:      tsModeCount,

		DSSkew:      dsSkew,
		DSMadm:      dsMadm,
		DSSizes:     dsSizes,
		DSCounts:    dsCounts,
		DSMode:      dsMode,
		DSModeCount: dsModeCount,

		BucketDivs: bucketDivs,
		FreqList:   freqList,
		TotalBars:  totalBars,
		LongestRun: longestRun,

		Coverage:    coverage,
		Consistency: consistency,
	}
	return report, nil
}

// getBeaconScore calculates the overall beacon score from the weighted subscores
func getBeaconScore(tsScore, tsWeight, dsScore, dsWeight, durScore, durWeight, histScore, histWeight float64) (float64, error) {
	// ensure that the calculated subscores are between 0 and 1
	scores := []float64{tsScore, dsScore, durScore, histScore}
	for _, score := range scores {
		if score < 0 || score > 1 {
			return 0, errors.New("scores must be between 0 and 1")
		}
	}

	// ensure that the weights are between 0 and 1 and sum to 1
	weights := []float64{tsWeight, dsWeight, durWeight, histWeight}
	weightSum := 0.0
	for _, weight := range weights {
		if weight < 0 || weight > 1 {
			return 0, errors.New("weights must be between 0 and 1")
		}
		weightSum += weight
	}
	// compare against an epsilon; sums like 0.7+0.1+0.1+0.1 land a few ulps
	// away from 1
	if math.Abs(weightSum-1) > 1e-9 {
		return 0, errors.New("weights must sum to 1")
	}

	// calculate the final score, rounded to three decimal places
	score := math.Round(((tsScore*tsWeight)+(dsScore*dsWeight)+(durScore*durWeight)+(histScore*histWeight))*1000) / 1000

	return score, nil
}

// getTimestampScore scores the regularity of the deltas between consecutive
// timestamps. It returns the score, skew, median absolute deviation, the
// distinct intervals with their counts, and the most common interval.
func getTimestampScore(tsList []float64) (float64, float64, float64, []int64, []int64, int64, int64, error) {
	// the delta list is one shorter than the timestamp list, and the distinct
	// value counter below needs at least two deltas
	if len(tsList) < 2 {
		return 0, 0, 0, nil, nil, 0, 0, ErrInsufficientData
	}

	// ensure that the timestamps are sorted
	if !util.Float64sAreSorted(tsList) {
		util.SortFloat64s(tsList)
	}

	// find the delta times between the full, non-unique timestamp list.
	// timestamps are truncated to whole seconds so that the intervals line up
	// with the histogram's integer bucket boundaries
	deltaTimesFull := make([]float64, len(tsList)-1)
	for i := 0; i < len(tsList)-1; i++ {
		deltaTimesFull[i] = float64(int64(tsList[i+1]) - int64(tsList[i]))
	}

	// sort the delta times
	util.SortFloat64s(deltaTimesFull)

	// get a list of the intervals found in the data, the number of times the
	// interval was found, and the most occurring interval
	intervals, intervalCounts, tsMode, tsModeCount, err := calculateDistinctCounts(deltaTimesFull)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	// deltas from the unique timestamp list are used for the scoring
	// calculations. These can be calculated by taking the slice of the sorted
	// deltaTimesFull from the first non-zero index
	nonZeroIndex := 0
	for i := 0; i < len(deltaTimesFull); i++ {
		if deltaTimesFull[i] > 0 {
			nonZeroIndex = i
			break
		}
	}
	deltaTimes := deltaTimesFull[nonZeroIndex:]

	// calculate the skewness of the interval distribution
	tsSkew, tsSkewScore, err := calculateBowleySkewness(deltaTimes)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	// calculate the median absolute deviation of the intervals. A degenerate
	// near-zero median delta means the connections fired back to back, which
	// is treated as maximally regular (default score: 1)
	tsMadm, tsMadmScore, err := calculateMedianAbsoluteDeviation(deltaTimes, 1)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	tsScore := math.Ceil(((tsSkewScore+tsMadmScore)/2)*1000) / 1000

	return tsScore, tsSkew, tsMadm, intervals, intervalCounts, tsMode, tsModeCount, nil
}

// getDataSizeScore scores the regularity of the originator byte counts. It
// returns the score, skew, median absolute deviation, the distinct sizes with
// their counts, and the most common size.
func getDataSizeScore(bytesList []int64) (float64, float64, float64, []int64, []int64, int64, int64, error) {
	if len(bytesList) < 2 {
		return 0, 0, 0, nil, nil, 0, 0, ErrInsufficientData
	}

	// sort the data sizes
	if !util.Int64sAreSorted(bytesList) {
		util.SortInt64s(bytesList)
	}

	data := make([]float64, len(bytesList))
	for i, size := range bytesList {
		data[i] = float64(size)
	}

	// find distinct data sizes and their counts
	dsSizes, dsCounts, dsMode, dsModeCount, err := calculateDistinctCounts(data)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	// calculate the skewness of the size distribution
	dsSkew, dsSkewScore, err := calculateBowleySkewness(data)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	// calculate the median absolute deviation of the sizes. A degenerate
	// near-zero median size carries no information (default score: 0)
	dsMadm, dsMadmScore, err := calculateMedianAbsoluteDeviation(data, 0)
	if err != nil {
		return 0, 0, 0, nil, nil, 0, 0, err
	}

	dsScore := math.Round(((dsSkewScore+dsMadmScore)/2.0)*1000) / 1000

	return dsScore, dsSkew, dsMadm, dsSizes, dsCounts, dsMode, dsModeCount, nil
}

func clampScore(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
