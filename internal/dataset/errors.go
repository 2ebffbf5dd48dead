package dataset

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned when a file is not a CNPJ dataset
var ErrInvalidFormat = errors.New("invalid dataset format")

// ErrNoDataset is returned when no dataset is active and no default is configured
var ErrNoDataset = errors.New("no active dataset")

// DatasetError reports a failure to read the dataset file. It is non-fatal:
// callers log it and answer with an empty result.
type DatasetError struct {
	Op   string
	Path string
	Err  error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &DatasetError{Op: op, Path: path, Err: err}
}
