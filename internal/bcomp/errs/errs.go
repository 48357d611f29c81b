// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package errs defines the error kinds surfaced by the compression layer. A
// kind is a sentinel which can be compared with errors.Is. Kinds can wrap a
// cause and both stay reachable through errors.Is and errors.As.
package errs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind is a sentinel error class of the compression layer.
type Kind string

var (
	ErrInvalidConfiguration    = Kind("invalid configuration")
	ErrOutOfMemory             = Kind("out of memory")
	ErrResourceExhausted       = Kind("resource exhausted")
	ErrCompressionFailed       = Kind("compression failed")
	ErrDecompressionFailed     = Kind("decompression failed")
	ErrUnsupportedTransferSize = Kind("unsupported transfer size")
	ErrUnsupportedOperation    = Kind("unsupported operation")
	ErrMappingFailed           = Kind("mapping failed")
	ErrIOFailed                = Kind("input/output error")
	ErrInvalidArgument         = Kind("invalid argument")
)

func (k Kind) Error() string {
	return string(k)
}

// WithMessage returns an error of kind k carrying a more specific message.
func (k Kind) WithMessage(format string, args ...interface{}) error {
	return &kindError{
		message: fmt.Sprintf("%s: %s", k, fmt.Sprintf(format, args...)),
		chain:   multierror.Append(k),
	}
}

// Wrap returns an error of kind k caused by err. Wrapping nil returns nil.
func (k Kind) Wrap(err error) error {
	if err == nil {
		return nil
	}

	return &kindError{
		message: fmt.Sprintf("%s: %s", k, err),
		chain:   multierror.Append(k, err),
	}
}

type kindError struct {
	message string
	chain   *multierror.Error
}

func (e *kindError) Error() string {
	return e.message
}

func (e *kindError) Unwrap() error {
	return e.chain.Unwrap()
}
