// Package pricing defines the pricing record value type and its
// normalization from raw table cells.
//
// Purpose:
//   One Record is one (date, region, operating system, instance type) row
//   of the on-demand pricing table. Records are produced by workers from
//   scraped cell text and consumed by the database and CSV sinks; the
//   derived primary key makes repeated harvests of the same day idempotent.
//
// Key Responsibilities:
//   - Normalize the six raw table cells into typed fields
//   - Derive the natural primary key
//   - Define the canonical CSV field order
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRow reports a table row whose cells could not be normalized.
var ErrMalformedRow = errors.New("pricing: malformed row")

// cellCount is the number of columns the pricing table exposes per row:
// instance type, hourly rate, vCPU, memory, storage, network.
const cellCount = 6

// Record is a single pricing row.
type Record struct {
	Date               string  `json:"date"`
	Region             string  `json:"region"`
	OperatingSystem    string  `json:"operating_system"`
	InstanceType       string  `json:"instance_type"`
	CostPerHour        float64 `json:"cost_per_hour"`
	CPUCount           int     `json:"cpu_count"`
	RAMGiB             float64 `json:"ram_gib"`
	StorageDescription string  `json:"storage_description"`
	NetworkDescription string  `json:"network_description"`
}

// FromCells normalizes one raw table row into a Record. The cells must be,
// in order: instance type, on-demand hourly rate (currency-sigil prefixed),
// vCPU count, memory ("<n> GiB"), storage description, network description.
// The date, region and operating system come from the filter context, not
// from the row.
func FromCells(date, region, operatingSystem string, cells []string) (Record, error) {
	if len(cells) != cellCount {
		return Record{}, fmt.Errorf("%w: got %d cells, want %d", ErrMalformedRow, len(cells), cellCount)
	}

	cost, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cells[1]), "$")), 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: hourly cost %q: %v", ErrMalformedRow, cells[1], err)
	}

	cpus, err := strconv.Atoi(strings.TrimSpace(cells[2]))
	if err != nil {
		return Record{}, fmt.Errorf("%w: cpu count %q: %v", ErrMalformedRow, cells[2], err)
	}

	ramFields := strings.Fields(cells[3])
	if len(ramFields) == 0 {
		return Record{}, fmt.Errorf("%w: empty memory cell", ErrMalformedRow)
	}
	ram, err := strconv.ParseFloat(ramFields[0], 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: memory %q: %v", ErrMalformedRow, cells[3], err)
	}

	return Record{
		Date:               date,
		Region:             region,
		OperatingSystem:    operatingSystem,
		InstanceType:       strings.TrimSpace(cells[0]),
		CostPerHour:        cost,
		CPUCount:           cpus,
		RAMGiB:             ram,
		StorageDescription: strings.TrimSpace(cells[4]),
		NetworkDescription: strings.TrimSpace(cells[5]),
	}, nil
}

// PrimaryKey derives the natural key. Components keep their exact forms;
// there is no case folding.
func (r Record) PrimaryKey() string {
	return r.Date + "-" + r.Region + "-" + r.OperatingSystem + "-" + r.InstanceType
}

// Fields returns the canonical CSV header, in order.
func Fields() []string {
	return []string{
		"date",
		"region",
		"operating_system",
		"instance_type",
		"cost_per_hour",
		"cpu_count",
		"ram_gib",
		"storage_description",
		"network_description",
	}
}

// CSVRow renders the record's values in canonical field order.
func (r Record) CSVRow() []string {
	return []string{
		r.Date,
		r.Region,
		r.OperatingSystem,
		r.InstanceType,
		strconv.FormatFloat(r.CostPerHour, 'f', -1, 64),
		strconv.Itoa(r.CPUCount),
		strconv.FormatFloat(r.RAMGiB, 'f', -1, 64),
		r.StorageDescription,
		r.NetworkDescription,
	}
}
