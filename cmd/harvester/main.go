// Command harvester runs one harvest of the EC2 on-demand pricing page:
// discover the offered regions and operating systems, drive a pool of
// headless browsers through every (operating system, region) combination,
// and store the priced instance types in postgres and per-region CSV files.
//
// Dependencies:
//   - internal/config: viper-layered CLI configuration
//   - internal/harvest: run controller, worker pool
//   - internal/browser: chromedp page driver
//   - internal/storage/postgres, internal/exports: sinks
//
// Key Responsibilities:
//   - Translate flags into run options
//   - Wire the optional integrations (redis, kafka, S3, OTLP) from config
//   - Degrade gracefully without a database (CSV-only, in-memory lifecycle)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zeebrow/ec2-price-tracker/internal/harvest"
)

// Populated via -ldflags at build time.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type rootFlags struct {
	threads          int
	overdrive        bool
	compress         bool
	regions          []string
	operatingSystems []string
	getRegions       bool
	getOSes          bool
	storeCSV         bool
	storeDB          bool
	csvDataDir       string
	checkSize        bool
	logFile          string
	verbose          bool
	noHeadless       bool
	configFile       string
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest EC2 on-demand pricing into postgres and CSV files",
		Long: `harvester scrapes the AWS EC2 on-demand pricing page with headless
browsers, one worker per browser, and stores every offered instance type
per (operating system, region) combination. Without flags it harvests the
full catalog with both sinks enabled.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	f := rootCmd.Flags()
	f.IntVarP(&flags.threads, "threads", "t", harvest.DefaultThreadCount, "worker count, one browser per worker (clamped to CPUs)")
	f.BoolVar(&flags.overdrive, "overdrive-madness", false, "allow more workers than CPUs")
	f.BoolVarP(&flags.compress, "compress", "z", false, "zip the day's CSV tree after the run")
	f.StringSliceVar(&flags.regions, "regions", nil, "harvest only these region codes")
	f.StringSliceVar(&flags.operatingSystems, "operating-systems", nil, "harvest only these operating systems")
	f.BoolVar(&flags.getRegions, "get-regions", false, "print the available regions and exit")
	f.BoolVar(&flags.getOSes, "get-operating-systems", false, "print the available operating systems and exit")
	f.BoolVar(&flags.storeCSV, "store-csv", true, "write per-region CSV files")
	f.BoolVar(&flags.storeDB, "store-db", true, "store records in postgres")
	f.StringVar(&flags.csvDataDir, "csv-data-dir", "", "root directory of the CSV tree (overrides config)")
	f.BoolVar(&flags.checkSize, "check-size", false, "print database and CSV tree sizes and exit")
	f.StringVar(&flags.logFile, "log-file", "", "log output file (default stdout)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	f.BoolVar(&flags.noHeadless, "no-headless", false, "run visible browser windows (debugging)")
	f.StringVar(&flags.configFile, "config", "", "explicit config file path")

	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("harvester %s (built %s, commit %s)\n", version, buildTime, gitCommit)
		},
	}
}
