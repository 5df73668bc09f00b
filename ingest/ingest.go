// Package ingest reads Zeek conn, http and ssl logs from a directory and
// assembles scoring candidates from them. The flow table built from the conn
// logs is the single source of timestamps and byte counts; http and ssl
// records only select which flows belong to an SNI candidate.
package ingest

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	zlog "github.com/activecm/beaconsift/logger"

	"github.com/spf13/afero"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrNoConnLogs = errors.New("no conn logs found in log directory")
var ErrNoConnRecords = errors.New("no valid conn records found in log directory")
var ErrCandidateNotFound = errors.New("could not find connection pair in logs")

// FlowRecord is one conn log entry, keyed by its zeek uid in the flow table.
// The consumed flag marks flows that have already been claimed by an http or
// ssl record so that a flow seen in both logs is only counted once.
type FlowRecord struct {
	Src         string
	Dst         string
	Timestamp   float64
	OrigIPBytes int64
	consumed    bool
}

// Dataset is the flow table for one log directory together with the
// observation window derived from it. The window always covers the trailing
// 24 hours of the dataset, ending at the newest conn record.
type Dataset struct {
	Flows map[string]*FlowRecord

	// DatasetMin is the floored max timestamp minus 24 hours and DatasetMax
	// is the raw max timestamp. WindowStart is DatasetMin rounded down to the
	// start of the hour; records are filtered against it because upstream
	// collectors store data in hour buckets aligned to the start of the hour
	DatasetMin  float64
	DatasetMax  float64
	WindowStart float64
}

// LoadDataset builds the flow table from every conn log in the given
// directory. Files are parsed concurrently; per-file parse failures are
// logged and the remaining files still contribute.
func LoadDataset(afs afero.Fs, logDir string, showProgress bool) (*Dataset, error) {
	logger := zlog.GetLogger()

	files, err := connLogFiles(afs, logDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoConnLogs
	}

	// the error channel is buffered so parsers never block on it: parseFile
	// reports at most one fatal error per file plus one truncation warning
	entries := make(chan Conn, 1000)
	errc := make(chan error, 2*len(files))
	paths := make(chan string)

	progress := newProgressBars(showProgress)
	fileBar := newFileBar(progress, "Log Parsing", int64(len(files)))

	numDigesters := runtime.NumCPU()
	if numDigesters > len(files) {
		numDigesters = len(files)
	}

	var digesters errgroup.Group
	for i := 0; i < numDigesters; i++ {
		digesters.Go(func() error {
			for path := range paths {
				parseFile(afs, path, entries, errc)
				fileBar.Increment()
			}
			return nil
		})
	}

	go func() {
		for _, file := range files {
			paths <- file
		}
		close(paths)
	}()

	go func() {
		// digesters never return an error; they report through errc
		_ = digesters.Wait()
		close(entries)
		close(errc)
	}()

	dataset := &Dataset{Flows: make(map[string]*FlowRecord)}
	maxTs := float64(0)
	for entry := range entries {
		if entry.UID == "" {
			continue
		}
		if entry.TimeStamp > maxTs {
			maxTs = entry.TimeStamp
		}
		dataset.Flows[entry.UID] = &FlowRecord{
			Src:         entry.Source,
			Dst:         entry.Destination,
			Timestamp:   entry.TimeStamp,
			OrigIPBytes: entry.OrigIPBytes,
		}
	}

	// parse errors were already logged with their paths; they only matter
	// here if nothing was ingested at all
	for range errc {
	}

	progress.Wait()

	if len(dataset.Flows) == 0 {
		return nil, ErrNoConnRecords
	}

	// the analysis window is the trailing 24 hours of the dataset
	dataset.DatasetMax = maxTs
	dataset.DatasetMin = math.Floor(maxTs) - 86400
	dataset.WindowStart = math.Floor(dataset.DatasetMin/3600) * 3600

	p := message.NewPrinter(language.English)
	logger.Debug().
		Str("flow_count", p.Sprintf("%d", len(dataset.Flows))).
		Float64("dataset_min", dataset.DatasetMin).
		Float64("dataset_max", dataset.DatasetMax).
		Msg("loaded conn logs")

	return dataset, nil
}

// connLogFiles lists the conn logs in the log directory, skipping the
// conn-summary logs produced by some collectors since they do not contain
// real connection records.
func connLogFiles(afs afero.Fs, logDir string) ([]string, error) {
	candidates, err := logFiles(afs, logDir, ConnPrefix)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, path := range candidates {
		base := filepath.Base(path)
		if strings.HasPrefix(base, ConnSummaryPrefixHyphen) || strings.HasPrefix(base, ConnSummaryPrefixUnderscore) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// logFiles globs for both plain and gzipped logs with the given prefix.
func logFiles(afs afero.Fs, logDir string, prefix string) ([]string, error) {
	plain, err := afero.Glob(afs, filepath.Join(logDir, prefix+"*.log"))
	if err != nil {
		return nil, err
	}
	gzipped, err := afero.Glob(afs, filepath.Join(logDir, prefix+"*.log.gz"))
	if err != nil {
		return nil, err
	}
	return append(plain, gzipped...), nil
}

// newProgressBars creates the progress container, writing to stderr or to
// nowhere when progress display is off (tests, CSV pipelines).
func newProgressBars(showProgress bool) *mpb.Progress {
	var out io.Writer = os.Stderr
	if !showProgress {
		out = io.Discard
	}
	return mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
}

// newFileBar adds a bar in the house style used for file based progress.
func newFileBar(progress *mpb.Progress, name string, total int64) *mpb.Bar {
	return progress.New(total,
		mpb.BarStyle().Lbound("╢").Filler("▌").Tip("▌").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "done"),
		),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
}
