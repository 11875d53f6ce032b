// csvstat summarizes one day of the harvester's CSV tree: per operating
// system, how many region files exist, how many data rows they hold and how
// much disk they take. Useful for eyeballing a run's output without a
// database.
//
// Usage:
//
//	go run scripts/csvstat/main.go -data-dir data -date 2026-08-25
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type osSummary struct {
	OperatingSystem string `json:"operating_system"`
	RegionFiles     int    `json:"region_files"`
	DataRows        int    `json:"data_rows"`
	Bytes           int64  `json:"bytes"`
}

type daySummary struct {
	Date        string      `json:"date"`
	DataDir     string      `json:"data_dir"`
	Summaries   []osSummary `json:"operating_systems"`
	TotalRows   int         `json:"total_rows"`
	TotalBytes  int64       `json:"total_bytes"`
	GeneratedAt string      `json:"generated_at"`
}

func main() {
	dataDir := flag.String("data-dir", "data", "root of the CSV tree")
	date := flag.String("date", time.Now().UTC().Format("2006-01-02"), "harvest date to summarize (YYYY-MM-DD)")
	out := flag.String("out", "", "write the summary to this file instead of stdout")
	flag.Parse()

	dayDir := filepath.Join(*dataDir, "ec2", *date)
	osDirs, err := os.ReadDir(dayDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", dayDir, err)
		os.Exit(1)
	}

	summary := daySummary{
		Date:        *date,
		DataDir:     *dataDir,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, osDir := range osDirs {
		if !osDir.IsDir() {
			continue
		}
		s, err := summarizeOS(filepath.Join(dayDir, osDir.Name()), osDir.Name())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to summarize %s: %v\n", osDir.Name(), err)
			os.Exit(1)
		}
		summary.Summaries = append(summary.Summaries, s)
		summary.TotalRows += s.DataRows
		summary.TotalBytes += s.Bytes
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode summary: %v\n", err)
		os.Exit(1)
	}
}

func summarizeOS(dir, name string) (osSummary, error) {
	s := osSummary{OperatingSystem: name}

	files, err := os.ReadDir(dir)
	if err != nil {
		return s, err
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".csv" {
			continue
		}
		path := filepath.Join(dir, file.Name())
		info, err := file.Info()
		if err != nil {
			return s, err
		}
		rows, err := countDataRows(path)
		if err != nil {
			return s, err
		}
		s.RegionFiles++
		s.DataRows += rows
		s.Bytes += info.Size()
	}
	return s, nil
}

// countDataRows counts CSV records excluding the header row.
func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows := -1 // skip the header
	for {
		if _, err := r.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		rows++
	}
	if rows < 0 {
		rows = 0
	}
	return rows, nil
}
