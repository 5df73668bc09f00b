package beacon

import (
	"errors"
	"math"
	"sort"

	"github.com/activecm/beaconsift/util"
)

// getHistogramScore calculates a score based on the histogram of connection
// timestamps over the dataset window. Two candidate scores are derived from
// the histogram and the larger one wins: the coefficient of variation score
// rewards flat, low-jitter activity across all buckets, while the bimodal fit
// score rewards activity concentrated into one or two dominant frequency
// bands (a classic two-level beacon signature).
func getHistogramScore(datasetMin int64, datasetMax int64, tsList []float64, modeSensitivity float64, bimodalOutlierRemoval int, bimodalMinHoursSeen int, bucketCount int) ([]int64, []int, int, int, float64, error) {
	// ensure that the input slice is not empty
	if len(tsList) == 0 {
		return nil, nil, 0, 0, 0, ErrInputSliceEmpty
	}

	// get histogram bucket boundaries (note: we currently look at a 24 hour period)
	bucketDivs, err := createBuckets(datasetMin, datasetMax, bucketCount)
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	// use timestamps to get frequencies for each bucket
	freqList, freqCount, totalBars, longestRun, err := createHistogram(bucketDivs, tsList, modeSensitivity)
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	// calculate first potential score: coefficient of variation
	// coefficient of variation will help score histograms that have jitter in
	// the number of connections but where the overall graph would still look
	// relatively flat and consistent
	cvScore, err := calculateCoefficientOfVariationScore(freqList)
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	// calculate second potential score: bimodal fit
	// this will score well for graphs that have 2-3 flat sections in their
	// connection histogram, or a bimodal freqCount histogram
	bimodalFitScore := calculateBimodalFitScore(freqCount, totalBars, bimodalOutlierRemoval, bimodalMinHoursSeen)

	// the final score is the max of the coefficient of variation and bimodal fit scores
	score := math.Max(cvScore, bimodalFitScore)

	return bucketDivs, freqList, totalBars, longestRun, score, nil
}

// createBuckets creates bucketCount half-open intervals between start and end
// by producing bucketCount+1 integer boundary timestamps. The interior step is
// the floored average bucket width, so the final bucket absorbs the integer
// division remainder and may be longer or shorter than the others. This is
// intentional.
func createBuckets(start int64, end int64, bucketCount int) ([]int64, error) {
	// ensure that the number of buckets is positive
	if bucketCount <= 0 {
		return nil, errors.New("number of desired histogram buckets must be greater than 0")
	}

	// ensure that the time range is valid
	if end <= start {
		return nil, ErrInvalidDatasetTimeRange
	}

	// set the number of boundaries. Since the boundaries include the endpoints,
	// the number of boundaries will be one more than the number of desired buckets
	total := bucketCount + 1

	// calculate step size
	step := (end - start) / int64(bucketCount)

	bucketDivs := make([]int64, total)

	// set first boundary to the min timestamp
	bucketDivs[0] = start

	// create evenly spaced timestamp boundaries
	for i := 1; i < total-1; i++ {
		bucketDivs[i] = start + int64(i)*step
	}

	// explicitly set the last boundary to the max timestamp
	bucketDivs[total-1] = end

	return bucketDivs, nil
}

// createHistogram calculates the number of connections that occurred within
// the time span represented by each bucket. The frequencies are assigned by a
// single forward scan over the sorted timestamps: the bucket cursor only
// advances, never rewinds, keeping the assignment O(n + bucketCount).
func createHistogram(bucketDivs []int64, timestamps []float64, modeSensitivity float64) ([]int, map[int64]int64, int, int, error) {
	// validate input
	if len(bucketDivs) < 2 {
		return nil, nil, 0, 0, errors.New("bucket boundaries must contain at least 2 elements")
	}

	if len(timestamps) == 0 {
		return nil, nil, 0, 0, ErrInputSliceEmpty
	}

	// ensure that the timestamps are sorted
	if !util.Float64sAreSorted(timestamps) {
		util.SortFloat64s(timestamps)
	}

	// the current bucket's upper boundary, used to determine if a timestamp
	// falls within the current bucket or if the cursor needs to move on
	currentBucket := 0
	nextBoundary := bucketDivs[currentBucket+1]

	// i.e. for a timestamp list of [1, 5, 23, 25, 42, 45] and boundaries
	// [0, 10, 20, 30, 40, 50], the histogram would be [2, 0, 2, 0, 2]
	freqList := make([]int, len(bucketDivs)-1)

	// loop over sorted timestamp list
	for _, timestamp := range timestamps {

		// increment if still in the current bucket
		if timestamp < float64(nextBoundary) {
			freqList[currentBucket]++
			continue
		}

		// if the timestamp is greater than or equal to the next boundary,
		// advance the cursor until its bucket contains the timestamp
		for j := currentBucket + 1; j < len(bucketDivs)-1; j++ {
			currentBucket = j
			nextBoundary = bucketDivs[j+1]
			if timestamp < float64(bucketDivs[j+1]) {
				break
			}
		}

		// increment count
		// this will also capture and increment for a situation where the final
		// timestamp is equal to the final boundary
		freqList[currentBucket]++
	}

	// get histogram frequency counts
	freqCount, totalBars, longestRun, err := getFrequencyCounts(freqList, modeSensitivity)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	return freqList, freqCount, totalBars, longestRun, nil
}

// getFrequencyCounts analyzes the histogram to calculate the frequency of each
// count, the total number of non-empty buckets, and the longest consecutive
// sequence of non-empty buckets seen in the histogram, including wrap around
// from the end to the start of the dataset.
func getFrequencyCounts(freqList []int, modeSensitivity float64) (map[int64]int64, int, int, error) {
	// ensure that the input is not empty
	if len(freqList) == 0 {
		return nil, 0, 0, ErrInputSliceEmpty
	}

	// count total non-zero histogram entries (total bars) and find the largest
	// histogram entry
	totalBars := 0
	largestConnCount := 0
	for _, entry := range freqList {
		if entry > 0 {
			totalBars++
		}
		if entry > largestConnCount {
			largestConnCount = entry
		}
	}

	// create a map to track how many buckets share each frequency band
	freqCount := make(map[int64]int64)

	// determine the band size for the frequency count map. This is expressed
	// as a percentage of the largest connection count and controls how
	// forgiving the bimodal analysis is to variation: bars within one band of
	// each other are grouped together rather than interpreted as separate
	// modes (default sensitivity: 0.05)
	bandSize := math.Ceil(float64(largestConnCount) * modeSensitivity)
	if bandSize < 1 {
		bandSize = 1
	}

	// track the longest consecutive run of active buckets, scanning the
	// histogram twice back-to-back so a run spanning the wrap-around between
	// the last and first bucket is measured correctly
	longestRun := 0
	currentRun := 0

	for i := 0; i < len(freqList)*2; i++ {

		// get the bar from the histogram, wrapping around if necessary
		frequency := freqList[i%len(freqList)]

		if frequency > 0 {
			currentRun++
		} else {
			if currentRun > longestRun {
				longestRun = currentRun
			}
			currentRun = 0
		}

		// limit the frequency count map to the first pass over the histogram
		if i < len(freqList) {
			if frequency > 0 {
				// figure out which band this bar falls into
				band := int64(math.Floor(float64(frequency)/bandSize) * bandSize)
				freqCount[band]++
			}
		}
	}

	if currentRun > longestRun {
		longestRun = currentRun
	}

	// since we could end up with twice the bucket count for the longest run if
	// every bucket has a connection, cap it here
	if longestRun > len(freqList) {
		longestRun = len(freqList)
	}

	return freqCount, totalBars, longestRun, nil
}

// calculateCoefficientOfVariationScore calculates a score based on the
// coefficient of variation (CV) of the bucket frequencies. The CV is the
// ratio of the population standard deviation to the mean; the score is
// inversely related to it, so flat histograms with little jitter score close
// to 1 and highly variable histograms score 0.
func calculateCoefficientOfVariationScore(freqList []int) (float64, error) {
	// ensure that the input slice is not empty
	if len(freqList) == 0 {
		return 0, ErrInputSliceEmpty
	}

	// calculate the total and check for negative values. This also ensures
	// that the mean cannot be zero, a case for which the CV is unreliable
	total := 0
	for _, entry := range freqList {
		if entry < 0 {
			return 0, errors.New("input slice must not contain negative values")
		}
		total += entry
	}
	if total <= 0 {
		return 0, errors.New("total must be greater than zero")
	}

	// calculate mean
	freqMean := float64(total) / float64(len(freqList))

	// calculate population standard deviation
	sd := float64(0)
	for j := 0; j < len(freqList); j++ {
		sd += math.Pow(float64(freqList[j])-freqMean, 2)
	}
	sd = math.Sqrt(sd / float64(len(freqList)))

	// calculate coefficient of variation
	cv := sd / math.Abs(freqMean)

	// datasets with high variability are given a zero score rather than a
	// negative one
	var cvScore float64
	if cv > 1.0 {
		cvScore = 0.0
	} else {
		cvScore = math.Round((1.0-cv)*1000) / 1000
	}

	// ensure that the score does not exceed 1
	if cvScore > 1.0 {
		cvScore = 1.0
	}

	return cvScore, nil
}

// calculateBimodalFitScore calculates how well the histogram fits a pattern of
// one or two dominant frequency bands, such as a beacon alternating between a
// low and a high connection count per hour. The score is computed only when
// the histogram has at least bimodalMinHoursSeen active buckets (default: 11);
// sparser histograms trivially have 1-2 modes and would always score high.
func calculateBimodalFitScore(freqCount map[int64]int64, totalBars int, bimodalOutlierRemoval int, bimodalMinHoursSeen int) float64 {
	bimodalFit := float64(0)

	if totalBars >= bimodalMinHoursSeen {
		// visit the frequency bands in ascending band order. The top-two sum
		// is the same either way, but a deterministic order keeps repeated
		// runs bit-identical
		bands := make([]int64, 0, len(freqCount))
		for band := range freqCount {
			bands = append(bands, band)
		}
		sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

		// get the two largest bucket populations among the frequency bands
		largest, secondLargest := int64(0), int64(0)
		for _, band := range bands {
			value := freqCount[band]
			if value > largest {
				secondLargest = largest
				largest = value
			} else if value > secondLargest {
				secondLargest = value
			}
		}

		// calculate the fraction of active buckets that fit into the top two
		// bands. A small buffer is provided by throwing out a configured
		// number of potential outlier buckets (default: 1)
		adjustedTotalBars := math.Max(float64(totalBars-bimodalOutlierRemoval), 1)
		bimodalFit = float64(largest+secondLargest) / adjustedTotalBars
	}

	// calculate the final score, ensuring that it does not exceed 1
	bimodalFitScore := math.Ceil(bimodalFit*1000) / 1000
	if bimodalFitScore > 1.0 {
		bimodalFitScore = 1.0
	}

	return bimodalFitScore
}
