package cmd

import (
	"errors"

	"github.com/activecm/beaconsift/config"
	"github.com/activecm/beaconsift/util"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var ErrMissingConfigPath = errors.New("config path parameter is required")
var ErrMissingLogDirectory = errors.New("log directory flag is required")
var ErrTooManyArguments = errors.New("too many arguments provided")

func Commands() []*cli.Command {
	return []*cli.Command{
		AnalyzeCommand,
		HuntCommand,
		ValidateConfigCommand,
	}
}

func ConfigFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Load configuration from `FILE`",
		Value:    config.DefaultConfigPath,
		Required: required,
		Action: func(_ *cli.Context, path string) error {
			return ValidateConfigPath(afero.NewOsFs(), path)
		},
	}
}

func LogDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "logs",
		Aliases:  []string{"l"},
		Usage:    "path to Zeek log directory",
		Required: true,
		Action: func(_ *cli.Context, path string) error {
			return ValidateLogDirectory(afero.NewOsFs(), path)
		},
	}
}

// ValidateLogDirectory verifies that the given log directory exists and is
// readable before a command commits to parsing it.
func ValidateLogDirectory(afs afero.Fs, dir string) error {
	if dir == "" {
		return ErrMissingLogDirectory
	}

	relDir, err := util.ParseRelativePath(dir)
	if err != nil {
		return err
	}

	return util.ValidateDirectory(afs, relDir)
}

func ValidateConfigPath(afs afero.Fs, configPath string) error {
	if configPath == "" {
		return ErrMissingConfigPath
	}

	relPath, err := util.ParseRelativePath(configPath)
	if err != nil {
		return err
	}

	return util.ValidateFile(afs, relPath)
}

// loadConfig reads the config at the given path, falling back to defaults
// when the default path does not exist.
func loadConfig(afs afero.Fs, path string) (*config.Config, error) {
	if path == config.DefaultConfigPath {
		return config.LoadConfig(afs, path)
	}
	return config.ReadFileConfig(afs, path)
}
