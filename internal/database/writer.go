package database

import (
	"context"

	"github.com/sirupsen/logrus"
)

// WriteFunc persists a single item
type WriteFunc[T any] func(ctx context.Context, item T) error

// WriteReport summarizes one WriteAll call
type WriteReport struct {
	Written int
	Skipped int
	Errors  []error
}

// SequentialWriter writes a batch one item at a time so that a single
// request never holds more than one store connection. An item that fails is
// logged and skipped; the rest of the batch still goes through.
type SequentialWriter[T any] struct {
	write  WriteFunc[T]
	logger logrus.FieldLogger
}

// NewSequentialWriter wraps a per-item write function
func NewSequentialWriter[T any](write WriteFunc[T], logger logrus.FieldLogger) *SequentialWriter[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SequentialWriter[T]{write: write, logger: logger}
}

// WriteAll writes items in order and returns the ones that were persisted.
// It stops early only when ctx is done.
func (w *SequentialWriter[T]) WriteAll(ctx context.Context, items []T) ([]T, WriteReport) {
	var report WriteReport
	written := make([]T, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Skipped += len(items) - i
			report.Errors = append(report.Errors, err)
			break
		}
		if err := w.write(ctx, item); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, err)
			w.logger.WithError(err).WithField("index", i).Warn("skipping point that failed to persist")
			continue
		}
		report.Written++
		written = append(written, item)
	}

	return written, report
}
