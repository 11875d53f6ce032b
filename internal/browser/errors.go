package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOS reports an operating system the pricing page does not
	// offer. The session is still healthy when this is returned.
	ErrUnknownOS = errors.New("browser: operating system not offered by pricing page")

	// ErrUnknownRegion reports a region the pricing page does not offer.
	// The session is still healthy when this is returned.
	ErrUnknownRegion = errors.New("browser: region not offered by pricing page")
)

// DriverError reports a failed interaction with the headless browser
// session. Unlike the unknown-selection sentinels, a DriverError means the
// session can no longer be trusted and should be torn down by the caller.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

func driverErr(op string, err error) error {
	return &DriverError{Op: op, Err: err}
}
