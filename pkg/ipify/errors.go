package ipify

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned when a required collaborator or input is missing.
var ErrInvalidArgument = errors.New("invalid argument")

// HTTPRequestError reports a lookup endpoint answering with a non-2xx status.
type HTTPRequestError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPRequestError) Error() string {
	return fmt.Sprintf("server response invalid: %s (%s)", e.Status, e.URL)
}

// AddressFormatError reports a response body that is not an IP literal.
type AddressFormatError struct {
	Input string
	Err   error
}

func (e *AddressFormatError) Error() string {
	return fmt.Sprintf("%q is not a valid ip address: %v", e.Input, e.Err)
}

func (e *AddressFormatError) Unwrap() error {
	return e.Err
}
