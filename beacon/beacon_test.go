package beacon

import (
	"testing"

	"github.com/activecm/beaconsift/config"
	"github.com/stretchr/testify/require"
)

// perfectHourlyCandidate builds a candidate with one identically sized
// connection at the top of every hour across a full day.
func perfectHourlyCandidate() (CandidateSeries, ObservationWindow) {
	timestamps := make([]float64, 24)
	sizes := make([]int64, 24)
	for i := range timestamps {
		timestamps[i] = float64(i * 3600)
		sizes[i] = 500
	}
	series := CandidateSeries{Timestamps: timestamps, ByteSizes: sizes}
	window := ObservationWindow{
		DatasetMin:   0,
		DatasetMax:   86400,
		CandidateMin: 0,
		CandidateMax: 82800,
	}
	return series, window
}

func TestAnalyzePerfectBeacon(t *testing.T) {
	series, window := perfectHourlyCandidate()
	cfg := config.GetDefaultConfig().Scoring.Beacon

	report, err := Analyze(series, window, cfg)
	require.NoError(t, err)

	require.InDelta(t, 1.0, report.Score, 1e-12)
	require.InDelta(t, 1.0, report.TimestampScore, 1e-12)
	require.InDelta(t, 1.0, report.DataSizeScore, 1e-12)
	require.InDelta(t, 1.0, report.HistogramScore, 1e-12)
	require.InDelta(t, 1.0, report.DurationScore, 1e-12)

	// interval diagnostics: 23 identical one hour deltas
	require.Equal(t, []int64{3600}, report.TSIntervals)
	require.Equal(t, []int64{23}, report.TSIntervalCounts)
	require.Equal(t, int64(3600), report.TSMode)
	require.Equal(t, int64(23), report.TSModeCount)

	// size diagnostics: 24 identical sizes
	require.Equal(t, []int64{500}, report.DSSizes)
	require.Equal(t, []int64{24}, report.DSCounts)
	require.Equal(t, int64(500), report.DSMode)
	require.Equal(t, int64(24), report.DSModeCount)

	// histogram diagnostics: every hourly bucket holds exactly one connection
	require.Len(t, report.BucketDivs, 25)
	require.Equal(t, 24, report.TotalBars)
	require.Equal(t, 24, report.LongestRun)
	for _, freq := range report.FreqList {
		require.Equal(t, 1, freq)
	}

	// the candidate spans 23 of 24 hours, rounded up to 3 decimals
	require.InDelta(t, 0.959, report.Coverage, 1e-12)
	require.InDelta(t, 1.0, report.Consistency, 1e-12)
}

func TestAnalyzeSparseCandidateGatesDurationAndHistogram(t *testing.T) {
	// four perfectly regular connections crammed into the first hour of the
	// day. Timing and size regularity are perfect, but the histogram and
	// duration components see too little activity to contribute
	series := CandidateSeries{
		Timestamps: []float64{0, 600, 1200, 1800},
		ByteSizes:  []int64{100, 100, 100, 100},
	}
	window := ObservationWindow{
		DatasetMin:   0,
		DatasetMax:   86400,
		CandidateMin: 0,
		CandidateMax: 1800,
	}
	cfg := config.GetDefaultConfig().Scoring.Beacon

	report, err := Analyze(series, window, cfg)
	require.NoError(t, err)

	require.InDelta(t, 1.0, report.TimestampScore, 1e-12)
	require.InDelta(t, 1.0, report.DataSizeScore, 1e-12)
	require.InDelta(t, 0.0, report.HistogramScore, 1e-12)
	require.InDelta(t, 0.0, report.DurationScore, 1e-12)
	require.InDelta(t, 0.5, report.Score, 1e-12)
	require.Equal(t, 1, report.TotalBars)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	series := CandidateSeries{
		Timestamps: []float64{0, 3000, 7200, 10900, 14400, 18100, 21600, 25300, 28800, 32500, 36000, 39700, 43200},
		ByteSizes:  []int64{512, 512, 1024, 512, 512, 1024, 512, 512, 1024, 512, 512, 1024, 512},
	}
	window := ObservationWindow{
		DatasetMin:   0,
		DatasetMax:   86400,
		CandidateMin: 0,
		CandidateMax: 43200,
	}
	cfg := config.GetDefaultConfig().Scoring.Beacon

	first, err := Analyze(series, window, cfg)
	require.NoError(t, err)

	second, err := Analyze(series, window, cfg)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.GreaterOrEqual(t, first.Score, 0.0)
	require.LessOrEqual(t, first.Score, 1.0)
}

func TestAnalyzeErrors(t *testing.T) {
	cfg := config.GetDefaultConfig().Scoring.Beacon

	tests := []struct {
		name          string
		series        CandidateSeries
		window        ObservationWindow
		expectedError error
	}{
		{
			name:          "Invalid Dataset Window",
			series:        CandidateSeries{Timestamps: []float64{1, 2, 3}, ByteSizes: []int64{1, 2, 3}},
			window:        ObservationWindow{DatasetMin: 100, DatasetMax: 100, CandidateMin: 1, CandidateMax: 3},
			expectedError: ErrInvalidDatasetTimeRange,
		},
		{
			name:          "Invalid Candidate Window",
			series:        CandidateSeries{Timestamps: []float64{1, 2, 3}, ByteSizes: []int64{1, 2, 3}},
			window:        ObservationWindow{DatasetMin: 0, DatasetMax: 86400, CandidateMin: 3, CandidateMax: 1},
			expectedError: ErrInvalidCandidateTimeRange,
		},
		{
			name:          "Single Connection",
			series:        CandidateSeries{Timestamps: []float64{5}, ByteSizes: []int64{100}},
			window:        ObservationWindow{DatasetMin: 0, DatasetMax: 86400, CandidateMin: 5, CandidateMax: 6},
			expectedError: ErrInsufficientData,
		},
		{
			name: "Two Connections Produce A Single Delta",
			// one delta is not enough for the distinct interval counter
			series:        CandidateSeries{Timestamps: []float64{5, 10}, ByteSizes: []int64{100, 100}},
			window:        ObservationWindow{DatasetMin: 0, DatasetMax: 86400, CandidateMin: 5, CandidateMax: 10},
			expectedError: ErrInsufficientData,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Analyze(test.series, test.window, cfg)
			require.ErrorIs(t, err, test.expectedError)
		})
	}
}

func TestGetTimestampScore(t *testing.T) {
	t.Run("Regular With Single Outlier", func(t *testing.T) {
		// four one minute deltas and one large outlier. The quartile and
		// median based statistics are robust to the single straggler
		score, skew, madm, intervals, counts, mode, modeCount, err := getTimestampScore(
			[]float64{0, 60, 120, 180, 240, 1000})
		require.NoError(t, err)
		require.InDelta(t, 1.0, score, 1e-12)
		require.InDelta(t, 0.0, skew, 1e-12)
		require.InDelta(t, 0.0, madm, 1e-12)
		require.Equal(t, []int64{60, 760}, intervals)
		require.Equal(t, []int64{4, 1}, counts)
		require.Equal(t, int64(60), mode)
		require.Equal(t, int64(4), modeCount)
	})

	t.Run("Back To Back Connections Score As Regular", func(t *testing.T) {
		// all deltas are zero; the degenerate median falls back to the
		// timing default score of 1
		score, _, _, intervals, counts, mode, modeCount, err := getTimestampScore([]float64{5, 5, 5})
		require.NoError(t, err)
		require.InDelta(t, 1.0, score, 1e-12)
		require.Equal(t, []int64{0}, intervals)
		require.Equal(t, []int64{2}, counts)
		require.Equal(t, int64(0), mode)
		require.Equal(t, int64(2), modeCount)
	})

	t.Run("Too Few Timestamps", func(t *testing.T) {
		_, _, _, _, _, _, _, err := getTimestampScore([]float64{5})
		require.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestGetDataSizeScore(t *testing.T) {
	t.Run("Skewed Sizes", func(t *testing.T) {
		score, skew, madm, sizes, counts, mode, modeCount, err := getDataSizeScore(
			[]int64{10, 20, 30, 40, 1000})
		require.NoError(t, err)
		// skew score 1 - 475/505, madm score (30-10)/30, averaged and rounded
		require.InDelta(t, 0.363, score, 1e-12)
		require.InDelta(t, 475.0/505.0, skew, 1e-12)
		require.InDelta(t, 10.0, madm, 1e-12)
		require.Equal(t, []int64{10, 20, 30, 40, 1000}, sizes)
		require.Equal(t, []int64{1, 1, 1, 1, 1}, counts)
		require.Equal(t, int64(10), mode)
		require.Equal(t, int64(1), modeCount)
	})

	t.Run("Identical Sizes", func(t *testing.T) {
		score, _, _, _, _, mode, modeCount, err := getDataSizeScore([]int64{512, 512, 512})
		require.NoError(t, err)
		require.InDelta(t, 1.0, score, 1e-12)
		require.Equal(t, int64(512), mode)
		require.Equal(t, int64(3), modeCount)
	})

	t.Run("All Zero Sizes Carry No Information", func(t *testing.T) {
		// the degenerate median falls back to the size default score of 0,
		// averaged with a skew score of 1
		score, _, _, _, _, _, _, err := getDataSizeScore([]int64{0, 0, 0})
		require.NoError(t, err)
		require.InDelta(t, 0.5, score, 1e-12)
	})

	t.Run("Too Few Sizes", func(t *testing.T) {
		_, _, _, _, _, _, _, err := getDataSizeScore([]int64{512})
		require.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestGetBeaconScore(t *testing.T) {
	tests := []struct {
		name          string
		tsScore       float64
		dsScore       float64
		durScore      float64
		histScore     float64
		weights       [4]float64
		expected      float64
		expectedError bool
	}{
		{
			name:    "Equal Weights",
			tsScore: 1, dsScore: 1, durScore: 1, histScore: 1,
			weights:  [4]float64{0.25, 0.25, 0.25, 0.25},
			expected: 1,
		},
		{
			name:    "Mixed Scores Round To Three Decimals",
			tsScore: 0.9, dsScore: 0.8, durScore: 0.5, histScore: 0.111,
			weights:  [4]float64{0.25, 0.25, 0.25, 0.25},
			expected: 0.578, // (0.9+0.8+0.5+0.111)/4 = 0.57775
		},
		{
			name:    "Uneven Weights",
			tsScore: 1, dsScore: 0, durScore: 0, histScore: 0,
			weights:  [4]float64{0.7, 0.1, 0.1, 0.1},
			expected: 0.7,
		},
		{
			name:    "Weights Must Sum To One",
			tsScore: 1, dsScore: 1, durScore: 1, histScore: 1,
			weights:       [4]float64{0.25, 0.25, 0.25, 0.5},
			expectedError: true,
		},
		{
			name:    "Negative Weight",
			tsScore: 1, dsScore: 1, durScore: 1, histScore: 1,
			weights:       [4]float64{-0.25, 0.5, 0.5, 0.25},
			expectedError: true,
		},
		{
			name:    "Score Out Of Range",
			tsScore: 1.5, dsScore: 1, durScore: 1, histScore: 1,
			weights:       [4]float64{0.25, 0.25, 0.25, 0.25},
			expectedError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			score, err := getBeaconScore(
				test.tsScore, test.weights[0],
				test.dsScore, test.weights[1],
				test.durScore, test.weights[2],
				test.histScore, test.weights[3],
			)
			if test.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, test.expected, score, 1e-12)
		})
	}
}

func TestClampScore(t *testing.T) {
	require.Equal(t, 0.0, clampScore(-0.5))
	require.Equal(t, 1.0, clampScore(1.5))
	require.Equal(t, 0.75, clampScore(0.75))
}
