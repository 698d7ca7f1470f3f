package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geofetch/geofetch/pkg/acquire"
	"github.com/geofetch/geofetch/pkg/consolidate"
	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
)

// ErrNoVariables is returned when neither the arguments nor the config name a variable
var ErrNoVariables = errors.New("no variables requested")

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	dlIdentifier       string
	dlBasePath         string
	dlRegionBounds     []float64
	dlFrequency        string
	dlOutputGroupBy    string
	dlWorkers          int
	dlRequestFrequency string
	dlOverwriteConfig  bool
	dlMergePolicy      string
	dlDryRun           bool
	dlDeleteRaw        bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var downloadCmd = &cobra.Command{
	Use:   "download {http|ftp|s3|esgf|cds} <hemisphere> <start-dates> <end-dates> [vars] [levels]",
	Short: "Download and consolidate a date range from a source",
	Long: `Download fetches every requested date that is not already present in the
dataset's canonical files, consolidates the raw files and saves the dataset
configuration.

Start and end dates are comma separated YYYY-MM-DD lists paired by position.
Variables are comma separated. Levels are given per variable, comma
separated, with "|" between several levels and an empty entry for none.
Use "-" as the hemisphere together with --region-bounds.

Examples:
  # OSI-SAF sea ice concentration for two winters
  geofetch download ftp north 2020-01-01,2021-01-01 2020-03-31,2021-03-31 siconca

  # ERA5 geopotential at two levels plus surface temperature
  geofetch download cds south 2020-01-01 2020-12-31 zg,tas "500|250,"`,
	Args: cobra.RangeArgs(4, 6),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringVar(&dlIdentifier, "identifier", "", "dataset identifier (default is the source name)")
	f.StringVar(&dlBasePath, "base-path", "", "dataset root directory (default from config)")
	f.Float64SliceVar(&dlRegionBounds, "region-bounds", nil, "explicit region as north,west,south,east")
	f.StringVarP(&dlFrequency, "frequency", "f", frequency.Day.Name(), "storage frequency")
	f.StringVarP(&dlOutputGroupBy, "output-group-by", "o", frequency.Year.Name(), "period covered by each output file")
	f.IntVarP(&dlWorkers, "workers", "w", 1, "concurrent fetch units")
	f.StringVar(&dlRequestFrequency, "request-frequency", frequency.Month.Name(), "batching of remote requests")
	f.BoolVar(&dlOverwriteConfig, "overwrite-config", false, "replace an existing dataset configuration with a different layout")
	f.StringVar(&dlMergePolicy, "merge-policy", string(consolidate.PreferExisting), "which value wins on overlapping timestamps (prefer-existing, prefer-incoming)")
	f.BoolVar(&dlDryRun, "dry-run", false, "plan the work units without fetching")
	f.BoolVar(&dlDeleteRaw, "delete-raw", false, "remove raw downloads once consolidated")
}

func runDownload(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	kind, err := acquire.ParseKind(args[0])
	if err != nil {
		return err
	}

	spec, err := downloadSpec(cfg, kind, args[1:])
	if err != nil {
		return err
	}

	ranges, err := download.ParseDateRanges(splitList(args[2]), splitList(args[3]))
	if err != nil {
		return err
	}

	requestFreq, err := frequency.Parse(dlRequestFrequency)
	if err != nil {
		return err
	}

	policy, err := consolidate.ParseMergePolicy(dlMergePolicy)
	if err != nil {
		return err
	}

	// Fails before any network activity on an invalid layout
	catalog, err := dataset.New(logger, spec)
	if err != nil {
		return err
	}

	stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	fetcher, err := acquire.NewFetcher(logger, kind, &cfg.Sources, catalog, dlWorkers, acquire.Deps{
		Cache: searchCache(cfg, redisClient),
	})
	if err != nil {
		return err
	}
	defer fetcher.Close()

	coarsest, finest := kind.Limits()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := acquire.Run(ctx, logger, catalog, fetcher, acquire.Options{
		Download: download.Config{
			Workers:            dlWorkers,
			RequestFrequency:   requestFreq,
			SourceMinFrequency: coarsest,
			SourceMaxFrequency: finest,
			DryRun:             dlDryRun,
			Ranges:             ranges,
		},
		Consolidate: consolidate.Options{
			Policy:        policy,
			DeleteSources: dlDeleteRaw,
		},
	})
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, dlDryRun)

	return nil
}

// downloadSpec builds the catalog spec from the positional arguments after
// the source name: hemisphere, start dates, end dates, vars and levels
func downloadSpec(cfg *CLIConfig, kind acquire.Kind, args []string) (dataset.Spec, error) {
	hemisphere := args[0]
	if hemisphere == "-" {
		hemisphere = ""
	}

	region, err := location.Resolve(hemisphere, dlRegionBounds)
	if err != nil {
		return dataset.Spec{}, fmt.Errorf("%w: %w", dataset.ErrConfig, err)
	}

	vars := cfg.Sources.DefaultVariables(kind)
	if len(args) > 3 && strings.TrimSpace(args[3]) != "" {
		vars = splitList(args[3])
	}

	if len(vars) == 0 {
		return dataset.Spec{}, fmt.Errorf("%w: %w for %s", dataset.ErrConfig, ErrNoVariables, kind)
	}

	rawLevels := ""
	if len(args) > 4 {
		rawLevels = args[4]
	}

	levels, err := dataset.ParseLevels(rawLevels, len(vars))
	if err != nil {
		return dataset.Spec{}, err
	}

	freq, err := frequency.Parse(dlFrequency)
	if err != nil {
		return dataset.Spec{}, fmt.Errorf("%w: %w", dataset.ErrConfig, err)
	}

	groupBy, err := frequency.Parse(dlOutputGroupBy)
	if err != nil {
		return dataset.Spec{}, fmt.Errorf("%w: %w", dataset.ErrConfig, err)
	}

	identifier := dlIdentifier
	if identifier == "" {
		identifier = string(kind)
	}

	basePath := dlBasePath
	if basePath == "" {
		basePath = cfg.BasePath
	}

	return dataset.Spec{
		Identifier:    identifier,
		BasePath:      basePath,
		Location:      region,
		Frequency:     freq,
		OutputGroupBy: groupBy,
		VarNames:      vars,
		Levels:        levels,
		Overwrite:     dlOverwriteConfig,
	}, nil
}
