package ingest

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/activecm/beaconsift/beacon"
	"github.com/activecm/beaconsift/config"
	zlog "github.com/activecm/beaconsift/logger"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// HuntResult is one scored candidate pair from a batch run.
type HuntResult struct {
	Src         string
	Dst         string
	Connections int
	Report      beacon.ScoreReport
}

// IPCandidate collects the series for a single (src, dst) IP pair from the
// flow table. Flows older than the start of the analysis window are dropped.
func (dataset *Dataset) IPCandidate(src string, dst string) (beacon.CandidateSeries, beacon.ObservationWindow, error) {
	var timestamps []float64
	var byteSizes []int64

	for _, flow := range dataset.Flows {
		// filter by WindowStart instead of DatasetMin because the data is
		// stored in hour buckets aligned to the start of the hour
		if flow.Src == src && flow.Dst == dst && flow.Timestamp >= dataset.WindowStart {
			timestamps = append(timestamps, flow.Timestamp)
			byteSizes = append(byteSizes, flow.OrigIPBytes)
		}
	}

	return dataset.assembleSeries(timestamps, byteSizes)
}

// SNICandidate collects the series for a (src, fqdn) pair. The http host and
// ssl server_name logs select the flows; timestamps and byte counts always
// come from the matching conn record. A flow is claimed at most once even
// when it appears in both the http and ssl logs.
func (dataset *Dataset) SNICandidate(afs afero.Fs, logDir string, src string, fqdn string) (beacon.CandidateSeries, beacon.ObservationWindow, error) {
	var timestamps []float64
	var byteSizes []int64

	claim := func(uid string) {
		flow, ok := dataset.Flows[uid]
		if !ok || flow.consumed {
			return
		}
		flow.consumed = true
		if flow.Timestamp >= dataset.WindowStart {
			timestamps = append(timestamps, flow.Timestamp)
			byteSizes = append(byteSizes, flow.OrigIPBytes)
		}
	}

	httpFiles, err := logFiles(afs, logDir, HTTPPrefix)
	if err != nil {
		return beacon.CandidateSeries{}, beacon.ObservationWindow{}, err
	}
	for entry := range parseAll[HTTP](afs, httpFiles) {
		if entry.Source == src && entry.Host == fqdn {
			claim(entry.UID)
		}
	}

	sslFiles, err := logFiles(afs, logDir, SSLPrefix)
	if err != nil {
		return beacon.CandidateSeries{}, beacon.ObservationWindow{}, err
	}
	for entry := range parseAll[SSL](afs, sslFiles) {
		if entry.Source == src && entry.ServerName == fqdn {
			claim(entry.UID)
		}
	}

	return dataset.assembleSeries(timestamps, byteSizes)
}

// parseAll parses a set of log files sequentially and returns a channel of
// their records. Parse errors were already logged per file; SNI selection
// works with whatever records survived.
func parseAll[Z zeekRecord](afs afero.Fs, files []string) <-chan Z {
	entries := make(chan Z, 1000)
	errc := make(chan error, 2*len(files)+1)
	go func() {
		for _, file := range files {
			parseFile(afs, file, entries, errc)
		}
		close(entries)
		close(errc)
	}()
	return entries
}

// assembleSeries sorts the collected values into the independently ordered
// series the scorer expects and derives the candidate's own time bounds.
func (dataset *Dataset) assembleSeries(timestamps []float64, byteSizes []int64) (beacon.CandidateSeries, beacon.ObservationWindow, error) {
	if len(timestamps) < 2 {
		return beacon.CandidateSeries{}, beacon.ObservationWindow{}, ErrCandidateNotFound
	}

	// the two series are sorted by their own values, not as paired tuples
	sort.Float64s(timestamps)
	sort.Slice(byteSizes, func(i, j int) bool { return byteSizes[i] < byteSizes[j] })

	series := beacon.CandidateSeries{Timestamps: timestamps, ByteSizes: byteSizes}
	window := beacon.ObservationWindow{
		DatasetMin:   dataset.DatasetMin,
		DatasetMax:   dataset.DatasetMax,
		CandidateMin: timestamps[0],
		CandidateMax: timestamps[len(timestamps)-1],
	}
	return series, window, nil
}

// Hunt enumerates every (src, dst) pair in the window with at least the
// configured number of connections and scores them all concurrently. A
// candidate that fails to score is logged and skipped; it never halts the
// batch. Results are returned sorted by composite score, best first.
func (dataset *Dataset) Hunt(ctx context.Context, cfg config.BeaconScoring, srcFilter string, showProgress bool) ([]HuntResult, error) {
	logger := zlog.GetLogger()

	type pairSeries struct {
		src        string
		dst        string
		timestamps []float64
		byteSizes  []int64
	}

	pairs := make(map[[2]string]*pairSeries)
	for _, flow := range dataset.Flows {
		if srcFilter != "" && flow.Src != srcFilter {
			continue
		}
		if flow.Timestamp < dataset.WindowStart {
			continue
		}
		key := [2]string{flow.Src, flow.Dst}
		pair, ok := pairs[key]
		if !ok {
			pair = &pairSeries{src: flow.Src, dst: flow.Dst}
			pairs[key] = pair
		}
		pair.timestamps = append(pair.timestamps, flow.Timestamp)
		pair.byteSizes = append(pair.byteSizes, flow.OrigIPBytes)
	}

	var candidates []*pairSeries
	for _, pair := range pairs {
		if int64(len(pair.timestamps)) >= cfg.UniqueConnectionThreshold {
			candidates = append(candidates, pair)
		}
	}

	p := message.NewPrinter(language.English)
	logger.Debug().
		Str("pair_count", p.Sprintf("%d", len(pairs))).
		Str("candidate_count", p.Sprintf("%d", len(candidates))).
		Msg("enumerated candidate pairs")

	// a zero-total bar never completes, which would block progress.Wait()
	if len(candidates) == 0 {
		return nil, nil
	}

	progress := newProgressBars(showProgress)
	scoreBar := newFileBar(progress, "Scoring", int64(len(candidates)))

	var mu sync.Mutex
	var results []HuntResult

	workers, workerCtx := errgroup.WithContext(ctx)
	workers.SetLimit(runtime.NumCPU())

	for _, pair := range candidates {
		pair := pair
		workers.Go(func() error {
			defer scoreBar.Increment()

			if err := workerCtx.Err(); err != nil {
				return err
			}

			series, window, err := dataset.assembleSeries(pair.timestamps, pair.byteSizes)
			if err != nil {
				logger.Debug().Err(err).Str("src", pair.src).Str("dst", pair.dst).Msg("skipping candidate")
				return nil
			}

			report, err := beacon.Analyze(series, window, cfg)
			if err != nil {
				logger.Debug().Err(err).Str("src", pair.src).Str("dst", pair.dst).Msg("skipping candidate")
				return nil
			}

			mu.Lock()
			results = append(results, HuntResult{
				Src:         pair.src,
				Dst:         pair.dst,
				Connections: len(series.Timestamps),
				Report:      report,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := workers.Wait(); err != nil {
		return nil, err
	}
	progress.Wait()

	// deterministic ordering: best score first, then busiest pair, then by
	// address so repeated runs list identical results identically
	sort.Slice(results, func(i, j int) bool {
		if results[i].Report.Score != results[j].Report.Score {
			return results[i].Report.Score > results[j].Report.Score
		}
		if results[i].Connections != results[j].Connections {
			return results[i].Connections > results[j].Connections
		}
		if results[i].Src != results[j].Src {
			return results[i].Src < results[j].Src
		}
		return results[i].Dst < results[j].Dst
	})

	return results, nil
}
