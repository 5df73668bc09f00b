package beacon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDurationScore(t *testing.T) {
	tests := []struct {
		name                  string
		datasetMin            int64
		datasetMax            int64
		histMin               int64
		histMax               int64
		totalBars             int
		longestConsecutiveRun int
		minHoursThreshold     int
		idealConsistentHours  int
		expectedCoverage      float64
		expectedConsistency   float64
		expectedScore         float64
		expectedError         error
	}{
		{
			name:                  "Half Coverage Fully Consistent",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               0,
			histMax:               43200,
			totalBars:             12,
			longestConsecutiveRun: 12,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedCoverage:      0.5,
			expectedConsistency:   1.0,
			expectedScore:         1.0,
		},
		{
			name:                  "Full Coverage Short Run",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               0,
			histMax:               86400,
			totalBars:             24,
			longestConsecutiveRun: 3,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedCoverage:      1.0,
			expectedConsistency:   0.25,
			expectedScore:         1.0,
		},
		{
			name:                  "Coverage Rounds Up",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               0,
			histMax:               82800,
			totalBars:             24,
			longestConsecutiveRun: 24,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedCoverage:      0.959, // ceil of 0.95833...
			expectedConsistency:   1.0,
			expectedScore:         1.0,
		},
		{
			name:                  "Too Sparse To Score",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               0,
			histMax:               43200,
			totalBars:             5,
			longestConsecutiveRun: 5,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedCoverage:      0,
			expectedConsistency:   0,
			expectedScore:         0,
		},
		{
			name:                  "Invalid Thresholds",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               0,
			histMax:               43200,
			totalBars:             12,
			longestConsecutiveRun: 12,
			minHoursThreshold:     0,
			idealConsistentHours:  12,
			expectedError:         ErrInvalidScoreThresholds,
		},
		{
			name:                  "Invalid Dataset Range",
			datasetMin:            86400,
			datasetMax:            0,
			histMin:               0,
			histMax:               43200,
			totalBars:             12,
			longestConsecutiveRun: 12,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedError:         ErrInvalidDatasetTimeRange,
		},
		{
			name:                  "Invalid Candidate Range",
			datasetMin:            0,
			datasetMax:            86400,
			histMin:               43200,
			histMax:               43200,
			totalBars:             12,
			longestConsecutiveRun: 12,
			minHoursThreshold:     6,
			idealConsistentHours:  12,
			expectedError:         ErrInvalidCandidateTimeRange,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			coverage, consistency, score, err := getDurationScore(
				test.datasetMin, test.datasetMax, test.histMin, test.histMax,
				test.totalBars, test.longestConsecutiveRun,
				test.minHoursThreshold, test.idealConsistentHours,
			)
			if test.expectedError != nil {
				require.ErrorIs(t, err, test.expectedError)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, test.expectedCoverage, coverage, 1e-12)
			require.InDelta(t, test.expectedConsistency, consistency, 1e-12)
			require.InDelta(t, test.expectedScore, score, 1e-12)
		})
	}
}
