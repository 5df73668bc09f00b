package beacon

import (
	"math"

	"github.com/activecm/beaconsift/util"

	"github.com/montanaflynn/stats"
)

// calculateDistinctCounts takes a sorted slice of numbers as input and returns
// the distinct numbers, their counts, the mode, and the mode's count. On tied
// counts the first value in ascending order keeps the mode.
func calculateDistinctCounts(input []float64) ([]int64, []int64, int64, int64, error) {
	// ensure that the input slice has at least 2 elements
	if len(input) < 2 {
		return nil, nil, 0, 0, ErrInsufficientData
	}

	// ensure that the input is sorted
	if !util.Float64sAreSorted(input) {
		util.SortFloat64s(input)
	}

	// create a slice to store unique elements from the number list,
	// starting with an empty slice (length 0) and a capacity based on
	// the assumption that every element in input is distinct
	distinctNumbers := make([]int64, 0, len(input))

	// countsMap will map each distinct number to its count
	countsMap := make(map[int64]int64)

	// initialize with the first element of input
	lastNumber := int64(input[0])
	distinctNumbers = append(distinctNumbers, lastNumber)
	countsMap[lastNumber]++

	// iterate through input to identify unique elements and count occurrences
	for _, currentNumber := range input[1:] {
		current := int64(currentNumber)

		// if the current number is different from the last one, add it to distinctNumbers
		if lastNumber != current {
			distinctNumbers = append(distinctNumbers, current)
		}

		// increment the count for the current number
		countsMap[current]++
		lastNumber = current
	}

	// prepare the results by calculating countsArray, mode, and maxCount
	countsArray := make([]int64, len(distinctNumbers))
	mode := distinctNumbers[0]  // assume the mode is the first distinct number
	maxCount := countsMap[mode] // initialize maxCount with the count of the assumed mode

	// find the mode and maximum count
	for i, number := range distinctNumbers {
		count := countsMap[number]
		countsArray[i] = count

		// update mode and maxCount only if a strictly higher count is found,
		// so ties go to the first value in ascending order
		if count > maxCount {
			maxCount = count
			mode = number
		}
	}

	return distinctNumbers, countsArray, mode, maxCount, nil
}

// calculateBowleySkewness calculates a quartile-based measure of skewness for
// a distribution. Perfect beacons would have symmetric delta time and size
// distributions.
func calculateBowleySkewness(data []float64) (float64, float64, error) {
	// ensure that the input slice is not empty
	if len(data) == 0 {
		return 0, 0, ErrInputSliceEmpty
	}

	// work on a sorted copy so the caller's slice is left untouched
	sorted := make([]float64, len(data))
	copy(sorted, data)
	util.SortFloat64s(sorted)

	var q1, q2, q3 float64

	if len(sorted) == 1 {
		// a single element has no quartile halves; collapsing the quartiles
		// onto the value lets the spread guard below zero out the skewness
		q1, q2, q3 = sorted[0], sorted[0], sorted[0]
	} else {
		// split the sorted data into a lower and upper half. For an even
		// length the halves meet at the midpoint boundary; for an odd length
		// the exact middle element is excluded from both halves
		var cutoff1, cutoff2 int
		if len(sorted)%2 == 0 {
			cutoff1 = len(sorted) / 2
			cutoff2 = len(sorted) / 2
		} else {
			cutoff1 = (len(sorted) - 1) / 2
			cutoff2 = cutoff1 + 1
		}

		var err error
		q1, err = stats.Median(sorted[:cutoff1])
		if err != nil {
			return 0, 0, err
		}
		q2, err = stats.Median(sorted)
		if err != nil {
			return 0, 0, err
		}
		q3, err = stats.Median(sorted[cutoff2:])
		if err != nil {
			return 0, 0, err
		}
	}

	// calculate the numerator and denominator
	// Bowley Skewness = (Q3+Q1 – 2Q2) / (Q3 – Q1)
	num := q1 + q3 - 2*q2
	den := q3 - q1

	// if the quartile spread is under 10 seconds/bytes, or the median is equal
	// to the lower or upper quartile, the skewness is forced to zero. This is
	// an insufficient-spread guard, not an error
	skewness := float64(0)
	if den >= 10 && q2 != q1 && q2 != q3 {
		skewness = num / den
	}

	// the score is intentionally left unclamped and can go negative when the
	// skewness magnitude exceeds 1; callers clamp downstream
	score := 1.0 - math.Abs(skewness)

	return skewness, score, nil
}

// calculateMedianAbsoluteDeviation calculates the Median Absolute Deviation
// (MAD) about the median, providing a score that measures the dispersion of a
// distribution. Perfectly consistent data would result in a MAD close to zero.
// defaultScore is used when the median is degenerate (below 1): callers pass 1
// for timing deltas and 0 for byte sizes.
func calculateMedianAbsoluteDeviation(data []float64, defaultScore float64) (float64, float64, error) {
	// ensure that the input slice is not empty
	if len(data) == 0 {
		return 0, 0, ErrInputSliceEmpty
	}

	// ensure that the input is sorted
	if !util.Float64sAreSorted(data) {
		util.SortFloat64s(data)
	}

	// calculate the median of the input data
	median, err := stats.Median(data)
	if err != nil {
		return 0, 0, err
	}

	mad, err := stats.MedianAbsoluteDeviation(data)
	if err != nil {
		return 0, 0, err
	}

	// calculate the MAD score, which is a measure of how much the data deviates
	// from its median. The MAD is normalized by dividing it by the median. As
	// the MAD increases, the score decreases, indicating more dispersion
	score := defaultScore
	if median >= 1 {
		score = (median - mad) / median
	}

	// if the score is less than zero or NaN, return zero
	if score < 0 || math.IsNaN(score) {
		score = 0
	}

	return mad, score, nil
}
