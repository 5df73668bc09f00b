package beacon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBuckets(t *testing.T) {
	tests := []struct {
		name          string
		start         int64
		end           int64
		bucketCount   int
		expected      []int64
		expectedError error
	}{
		{
			name:        "Even Division",
			start:       0,
			end:         24000,
			bucketCount: 24,
			expected: []int64{
				0, 1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000, 10000, 11000,
				12000, 13000, 14000, 15000, 16000, 17000, 18000, 19000, 20000, 21000, 22000, 23000, 24000,
			},
		},
		{
			name:        "Remainder Absorbed By Last Bucket",
			start:       0,
			end:         100,
			bucketCount: 24,
			expected: []int64{
				0, 4, 8, 12, 16, 20, 24, 28, 32, 36, 40, 44,
				48, 52, 56, 60, 64, 68, 72, 76, 80, 84, 88, 92, 100,
			},
		},
		{
			name:        "Nonzero Start",
			start:       1517336042,
			end:         1517336042 + 240,
			bucketCount: 4,
			expected:    []int64{1517336042, 1517336102, 1517336162, 1517336222, 1517336282},
		},
		{
			name:          "End Equals Start",
			start:         100,
			end:           100,
			bucketCount:   24,
			expectedError: ErrInvalidDatasetTimeRange,
		},
		{
			name:          "End Before Start",
			start:         200,
			end:           100,
			bucketCount:   24,
			expectedError: ErrInvalidDatasetTimeRange,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bucketDivs, err := createBuckets(test.start, test.end, test.bucketCount)
			if test.expectedError != nil {
				require.ErrorIs(t, err, test.expectedError)
				return
			}
			require.NoError(t, err)
			require.Len(t, bucketDivs, test.bucketCount+1)
			require.Equal(t, test.expected, bucketDivs)
		})
	}
}

func TestCreateBucketsRejectsNonPositiveCount(t *testing.T) {
	_, err := createBuckets(0, 86400, 0)
	require.Error(t, err)

	_, err = createBuckets(0, 86400, -1)
	require.Error(t, err)
}

func TestCreateHistogram(t *testing.T) {
	tests := []struct {
		name               string
		bucketDivs         []int64
		timestamps         []float64
		expectedFreqList   []int
		expectedTotalBars  int
		expectedLongestRun int
	}{
		{
			name:               "Alternating Buckets",
			bucketDivs:         []int64{0, 10, 20, 30, 40, 50},
			timestamps:         []float64{1, 5, 23, 25, 42, 45},
			expectedFreqList:   []int{2, 0, 2, 0, 2},
			expectedTotalBars:  3,
			expectedLongestRun: 2, // wraps from the last bucket to the first
		},
		{
			name:               "Timestamp On Final Boundary",
			bucketDivs:         []int64{0, 10, 20},
			timestamps:         []float64{5, 20},
			expectedFreqList:   []int{1, 1},
			expectedTotalBars:  2,
			expectedLongestRun: 2,
		},
		{
			name:               "All Activity In One Bucket",
			bucketDivs:         []int64{0, 10, 20, 30},
			timestamps:         []float64{2, 3, 4},
			expectedFreqList:   []int{3, 0, 0},
			expectedTotalBars:  1,
			expectedLongestRun: 1,
		},
		{
			name:               "Unsorted Timestamps Are Sorted First",
			bucketDivs:         []int64{0, 10, 20, 30},
			timestamps:         []float64{25, 5, 15},
			expectedFreqList:   []int{1, 1, 1},
			expectedTotalBars:  3,
			expectedLongestRun: 3,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			freqList, _, totalBars, longestRun, err := createHistogram(test.bucketDivs, test.timestamps, 0.05)
			require.NoError(t, err)
			require.Equal(t, test.expectedFreqList, freqList)
			require.Equal(t, test.expectedTotalBars, totalBars)
			require.Equal(t, test.expectedLongestRun, longestRun)
		})
	}
}

func TestCreateHistogramErrors(t *testing.T) {
	_, _, _, _, err := createHistogram([]int64{0}, []float64{1, 2}, 0.05)
	require.Error(t, err, "a single boundary cannot describe a bucket")

	_, _, _, _, err = createHistogram([]int64{0, 10}, []float64{}, 0.05)
	require.ErrorIs(t, err, ErrInputSliceEmpty)
}

func TestGetFrequencyCounts(t *testing.T) {
	tests := []struct {
		name               string
		freqList           []int
		modeSensitivity    float64
		expectedFreqCount  map[int64]int64
		expectedTotalBars  int
		expectedLongestRun int
	}{
		{
			name:            "Wrap Around Run",
			freqList:        []int{1, 0, 1, 1, 0, 1},
			modeSensitivity: 0.05,
			expectedFreqCount: map[int64]int64{
				1: 4,
			},
			expectedTotalBars:  4,
			expectedLongestRun: 2,
		},
		{
			name:            "Fully Active Run Is Capped At Bucket Count",
			freqList:        []int{2, 2, 2},
			modeSensitivity: 0.05,
			expectedFreqCount: map[int64]int64{
				2: 3,
			},
			expectedTotalBars:  3,
			expectedLongestRun: 3,
		},
		{
			name:               "Empty Histogram",
			freqList:           []int{0, 0, 0, 0},
			modeSensitivity:    0.05,
			expectedFreqCount:  map[int64]int64{},
			expectedTotalBars:  0,
			expectedLongestRun: 0,
		},
		{
			name: "Sensitivity Bands Group Nearby Frequencies",
			// largest count is 100, so the band size is ceil(100 * 0.05) = 5
			// and 95..99 land together in the 95 band
			freqList:        []int{98, 100, 95, 7},
			modeSensitivity: 0.05,
			expectedFreqCount: map[int64]int64{
				95:  2, // 98, 95
				100: 1,
				5:   1, // 7
			},
			expectedTotalBars:  4,
			expectedLongestRun: 4,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			freqCount, totalBars, longestRun, err := getFrequencyCounts(test.freqList, test.modeSensitivity)
			require.NoError(t, err)
			require.Equal(t, test.expectedFreqCount, freqCount)
			require.Equal(t, test.expectedTotalBars, totalBars)
			require.Equal(t, test.expectedLongestRun, longestRun)
		})
	}
}

func TestGetFrequencyCountsEmptyInput(t *testing.T) {
	_, _, _, err := getFrequencyCounts([]int{}, 0.05)
	require.ErrorIs(t, err, ErrInputSliceEmpty)
}

func TestCalculateCoefficientOfVariationScore(t *testing.T) {
	tests := []struct {
		name          string
		freqList      []int
		expected      float64
		expectedError bool
	}{
		{
			name:     "Perfectly Flat",
			freqList: []int{5, 5, 5, 5},
			expected: 1,
		},
		{
			name: "Small Jitter",
			// mean 5, population stddev sqrt(0.5), cv ~0.1414
			freqList: []int{4, 5, 6, 5},
			expected: 0.859,
		},
		{
			name:     "High Variability Floors At Zero",
			freqList: []int{10, 0, 0, 0},
			expected: 0,
		},
		{
			name:          "Empty Input",
			freqList:      []int{},
			expectedError: true,
		},
		{
			name:          "Negative Entry",
			freqList:      []int{1, -1, 1},
			expectedError: true,
		},
		{
			name:          "All Zero",
			freqList:      []int{0, 0, 0},
			expectedError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			score, err := calculateCoefficientOfVariationScore(test.freqList)
			if test.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, test.expected, score, 1e-12)
		})
	}
}

func TestCalculateBimodalFitScore(t *testing.T) {
	tests := []struct {
		name                  string
		freqCount             map[int64]int64
		totalBars             int
		bimodalOutlierRemoval int
		bimodalMinHoursSeen   int
		expected              float64
	}{
		{
			name:                  "Too Few Active Buckets",
			freqCount:             map[int64]int64{1: 3, 2: 2},
			totalBars:             5,
			bimodalOutlierRemoval: 1,
			bimodalMinHoursSeen:   11,
			expected:              0,
		},
		{
			name:                  "Perfect Bimodal Fit",
			freqCount:             map[int64]int64{1: 8, 2: 4, 5: 1},
			totalBars:             13,
			bimodalOutlierRemoval: 1,
			bimodalMinHoursSeen:   11,
			expected:              1,
		},
		{
			name:                  "Partial Fit",
			freqCount:             map[int64]int64{1: 6, 3: 5, 7: 2},
			totalBars:             13,
			bimodalOutlierRemoval: 1,
			bimodalMinHoursSeen:   11,
			// (6+5)/(13-1) = 0.91666..., rounded up
			expected: 0.917,
		},
		{
			name:                  "Outlier Allowance Cannot Push Score Past One",
			freqCount:             map[int64]int64{1: 12},
			totalBars:             12,
			bimodalOutlierRemoval: 1,
			bimodalMinHoursSeen:   11,
			expected:              1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			score := calculateBimodalFitScore(test.freqCount, test.totalBars, test.bimodalOutlierRemoval, test.bimodalMinHoursSeen)
			require.InDelta(t, test.expected, score, 1e-12)
		})
	}
}

func TestGetHistogramScore(t *testing.T) {
	t.Run("Perfect Hourly Beacon", func(t *testing.T) {
		// one connection at the top of every hour over a 24 hour window
		timestamps := make([]float64, 24)
		for i := range timestamps {
			timestamps[i] = float64(i * 3600)
		}

		bucketDivs, freqList, totalBars, longestRun, score, err := getHistogramScore(0, 86400, timestamps, 0.05, 1, 11, 24)
		require.NoError(t, err)
		require.Len(t, bucketDivs, 25)
		require.Equal(t, 24, totalBars)
		require.Equal(t, 24, longestRun)
		for _, freq := range freqList {
			require.Equal(t, 1, freq)
		}
		require.InDelta(t, 1.0, score, 1e-12)
	})

	t.Run("Bimodal Beats Coefficient Of Variation", func(t *testing.T) {
		// a two-level pattern: 12 hours at one connection, 12 hours at ten.
		// the CV is high but the bimodal fit is perfect
		timestamps := []float64{}
		for hour := 0; hour < 24; hour++ {
			conns := 1
			if hour%2 == 0 {
				conns = 10
			}
			for c := 0; c < conns; c++ {
				timestamps = append(timestamps, float64(hour*3600+c*60))
			}
		}

		_, _, totalBars, _, score, err := getHistogramScore(0, 86400, timestamps, 0.05, 1, 11, 24)
		require.NoError(t, err)
		require.Equal(t, 24, totalBars)
		require.InDelta(t, 1.0, score, 1e-12)
	})

	t.Run("Empty Timestamps", func(t *testing.T) {
		_, _, _, _, _, err := getHistogramScore(0, 86400, []float64{}, 0.05, 1, 11, 24)
		require.ErrorIs(t, err, ErrInputSliceEmpty)
	})

	t.Run("Invalid Window", func(t *testing.T) {
		_, _, _, _, _, err := getHistogramScore(86400, 0, []float64{1, 2, 3}, 0.05, 1, 11, 24)
		require.ErrorIs(t, err, ErrInvalidDatasetTimeRange)
	})
}
