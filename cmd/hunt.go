package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/activecm/beaconsift/config"
	"github.com/activecm/beaconsift/ingest"
	zlog "github.com/activecm/beaconsift/logger"
	"github.com/activecm/beaconsift/viewer"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var HuntCommand = &cli.Command{
	Name:      "hunt",
	Usage:     "score every connection pair in a log directory and browse the results",
	UsageText: "beaconsift hunt --logs DIRECTORY [--src IP] [--csv]",
	Args:      false,
	Flags: []cli.Flag{
		LogDirFlag(),
		&cli.StringFlag{
			Name:    "src",
			Aliases: []string{"s"},
			Usage:   "only score pairs originating from this source IP",
		},
		&cli.BoolFlag{
			Name:  "csv",
			Usage: "print results as CSV instead of opening the interactive viewer",
			Value: false,
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

		// ingestion and scoring finish before the viewer takes the terminal,
		// so progress bars render in interactive mode; CSV output stays clean
		csv := cCtx.Bool("csv")

		results, err := RunHuntCmd(cCtx.Context, afs, cfg, cCtx.String("logs"), cCtx.String("src"), !csv)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("\n\t[!] No beacon candidates met the connection threshold")
			return nil
		}

		if csv {
			fmt.Println(viewer.FormatToCSV(results))
			return nil
		}

		return viewer.CreateUI(results)
	},
}

// RunHuntCmd loads the dataset from logDir and scores every unique connection
// pair that meets the configured connection threshold. Results come back
// sorted by descending score.
func RunHuntCmd(ctx context.Context, afs afero.Fs, cfg *config.Config, logDir string, srcFilter string, showProgress bool) ([]ingest.HuntResult, error) {
	logger := zlog.GetLogger().With().Str("hunt_id", uuid.NewString()).Logger()

	start := time.Now()

	dataset, err := ingest.LoadDataset(afs, logDir, showProgress)
	if err != nil {
		return nil, err
	}

	results, err := dataset.Hunt(ctx, cfg.Scoring.Beacon, srcFilter, showProgress)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("logs", logDir).
		Int("flows", len(dataset.Flows)).
		Int("candidates", len(results)).
		Str("elapsed", time.Since(start).String()).
		Msg("hunt finished")

	return results, nil
}
