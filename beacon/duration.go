package beacon

import (
	"math"
)

// getDurationScore calculates a duration score, provided that a sufficient
// number of hours (default threshold: 6) are represented in the connection
// frequency histogram. The score is the maximum of two subscores: dataset
// timespan coverage and consistency of connection hours.
func getDurationScore(datasetMin int64, datasetMax int64, histMin int64, histMax int64, totalBars int, longestConsecutiveRun int, minHoursThreshold int, idealConsistentHours int) (float64, float64, float64, error) {
	// ensure that the input values are valid
	if minHoursThreshold < 1 || idealConsistentHours < 1 {
		return 0, 0, 0, ErrInvalidScoreThresholds
	}
	if datasetMax <= datasetMin {
		return 0, 0, 0, ErrInvalidDatasetTimeRange
	}
	if histMax <= histMin {
		return 0, 0, 0, ErrInvalidCandidateTimeRange
	}

	coverage, consistency, score := float64(0), float64(0), float64(0)

	// check if there is enough data to calculate the duration score; too few
	// active buckets means the candidate is too sparse to assess
	if totalBars >= minHoursThreshold {

		// calculate the dataset timespan coverage score: the proportion of the
		// full dataset window spanned by the candidate's own activity:
		//    [ timestamp of last connection - timestamp of first connection ] /
		//    [ last timestamp of dataset - first timestamp of dataset ]
		coverage = math.Ceil((float64(histMax-histMin)/float64(datasetMax-datasetMin))*1000) / 1000
		if coverage > 1.0 {
			coverage = 1.0
		}

		// calculate the consistency score: how close the longest run of
		// consecutive active hours (including wrap-around) comes to an
		// "always on" pattern:
		//    [ longest run of consecutive hours seen ] / [ ideal consecutive hours (default: 12) ]
		consistency = math.Ceil((float64(longestConsecutiveRun)/float64(idealConsistentHours))*1000) / 1000
		if consistency > 1.0 {
			consistency = 1.0
		}

		// take the maximum of the two scores
		score = math.Max(coverage, consistency)
	}

	return coverage, consistency, score, nil
}
