package harvest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultThreadCount is the worker count used when a run does not ask for
// one.
const DefaultThreadCount = 4

// Options are the per-run knobs. They arrive either from CLI flags or as
// the JSON body of the control API's run request; the API renders them
// back to CLI arguments when it spawns the run process.
type Options struct {
	// ThreadCount is the requested worker count. It is clamped to the
	// host's CPU count unless Overdrive is set, and floored at one.
	ThreadCount int `json:"thread_count"`

	// Overdrive lifts the CPU-count clamp on ThreadCount.
	Overdrive bool `json:"overdrive_madness"`

	// Compress zips the day's CSV tree after the run.
	Compress bool `json:"compress"`

	// Regions restricts the run to these region codes. Empty means every
	// region the page offers.
	Regions []string `json:"regions,omitempty"`

	// OperatingSystems restricts the run to these operating systems.
	// Empty means every operating system the page offers.
	OperatingSystems []string `json:"operating_systems,omitempty"`

	// StoreCSV enables the CSV sink.
	StoreCSV bool `json:"store_csv"`

	// StoreDB enables the database sink.
	StoreDB bool `json:"store_db"`

	// CSVDataDir overrides the CSV tree root. Empty keeps the configured
	// default.
	CSVDataDir string `json:"csv_data_dir,omitempty"`
}

// DefaultOptions returns the options a bare run uses: both sinks on,
// DefaultThreadCount workers, every region and operating system.
func DefaultOptions() Options {
	return Options{
		ThreadCount: DefaultThreadCount,
		StoreCSV:    true,
		StoreDB:     true,
	}
}

// Validate rejects option combinations no run could honor. Allow-list
// entries are only checked for shape here; whether the page actually offers
// them is established against the live catalogs at run start.
func (o Options) Validate() error {
	if o.ThreadCount < 0 {
		return fmt.Errorf("harvest: thread count %d is negative", o.ThreadCount)
	}
	for _, r := range o.Regions {
		if strings.TrimSpace(r) == "" {
			return errors.New("harvest: empty region in allow-list")
		}
	}
	for _, os := range o.OperatingSystems {
		if strings.TrimSpace(os) == "" {
			return errors.New("harvest: empty operating system in allow-list")
		}
	}
	return nil
}

// Argv renders the options as CLI arguments, the form the control API uses
// to hand a run to a fresh harvester process. Defaults are omitted so the
// spawned command stays readable in process listings.
func (o Options) Argv() []string {
	args := []string{"--threads", strconv.Itoa(o.ThreadCount)}
	if o.Overdrive {
		args = append(args, "--overdrive-madness")
	}
	if o.Compress {
		args = append(args, "--compress")
	}
	if len(o.Regions) > 0 {
		args = append(args, "--regions", strings.Join(o.Regions, ","))
	}
	if len(o.OperatingSystems) > 0 {
		args = append(args, "--operating-systems", strings.Join(o.OperatingSystems, ","))
	}
	if !o.StoreCSV {
		args = append(args, "--store-csv=false")
	}
	if !o.StoreDB {
		args = append(args, "--store-db=false")
	}
	if o.CSVDataDir != "" {
		args = append(args, "--csv-data-dir", o.CSVDataDir)
	}
	return args
}
