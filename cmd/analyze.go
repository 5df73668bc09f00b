package cmd

import (
	"errors"
	"fmt"

	"github.com/activecm/beaconsift/beacon"
	"github.com/activecm/beaconsift/config"
	"github.com/activecm/beaconsift/ingest"
	zlog "github.com/activecm/beaconsift/logger"
	"github.com/activecm/beaconsift/viewer"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var ErrMissingSource = errors.New("source IP flag is required")
var ErrMissingTarget = errors.New("either a destination IP or an FQDN is required")
var ErrAmbiguousTarget = errors.New("destination IP and FQDN flags are mutually exclusive")

var AnalyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "score a single connection pair for beaconing behavior",
	UsageText: "beaconsift analyze --logs DIRECTORY --src IP (--dst IP | --fqdn NAME)",
	Args:      false,
	Flags: []cli.Flag{
		LogDirFlag(),
		&cli.StringFlag{
			Name:     "src",
			Aliases:  []string{"s"},
			Usage:    "source IP of the connection pair",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "dst",
			Usage: "destination IP of the connection pair",
		},
		&cli.StringFlag{
			Name:  "fqdn",
			Usage: "destination FQDN, matched against HTTP host headers and TLS server names",
		},
		ConfigFlag(false),
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}

		afs := afero.NewOsFs()

		cfg, err := loadConfig(afs, cCtx.String("config"))
		if err != nil {
			return err
		}

		report, err := RunAnalyzeCmd(afs, cfg, cCtx.String("logs"), cCtx.String("src"), cCtx.String("dst"), cCtx.String("fqdn"), true)
		if err != nil {
			return err
		}

		fmt.Println(report)

		return nil
	},
}

// RunAnalyzeCmd scores the connections between src and a single target,
// identified either by destination IP or by FQDN, and returns the rendered
// report.
func RunAnalyzeCmd(afs afero.Fs, cfg *config.Config, logDir string, src string, dst string, fqdn string, showProgress bool) (string, error) {
	logger := zlog.GetLogger()

	if src == "" {
		return "", ErrMissingSource
	}

	switch {
	case dst == "" && fqdn == "":
		return "", ErrMissingTarget
	case dst != "" && fqdn != "":
		return "", ErrAmbiguousTarget
	}

	dataset, err := ingest.LoadDataset(afs, logDir, showProgress)
	if err != nil {
		return "", err
	}

	var series beacon.CandidateSeries
	var window beacon.ObservationWindow
	target := dst
	if fqdn != "" {
		target = fqdn
		series, window, err = dataset.SNICandidate(afs, logDir, src, fqdn)
	} else {
		series, window, err = dataset.IPCandidate(src, dst)
	}
	if err != nil {
		return "", err
	}

	logger.Debug().
		Str("src", src).
		Str("target", target).
		Int("connections", len(series.Timestamps)).
		Msg("assembled candidate series")

	report, err := beacon.Analyze(series, window, cfg.Scoring.Beacon)
	if err != nil {
		return "", err
	}

	return viewer.RenderReport(src, target, len(series.Timestamps), report), nil
}
