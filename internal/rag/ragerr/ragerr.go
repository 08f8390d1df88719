// Package ragerr defines the error taxonomy shared by the ingestion and
// retrieval pipelines. Handlers map these onto HTTP status codes at the
// boundary; internal detail stays out of responses.
package ragerr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Stage names the pipeline step an error originated from, so callers can
// tell "found nothing relevant" apart from "found context but could not
// generate an answer".
type Stage string

const (
	StageValidation Stage = "validation"
	StageExtraction Stage = "extraction"
	StageEmbedding  Stage = "embedding"
	StageStore      Stage = "vector_store"
	StageGeneration Stage = "generation"
)

// ValidationError reports bad input shape or size. User-fixable.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExtractionError reports a document that could not be parsed as its
// declared format (corrupt, encrypted, unsupported internal structure).
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// TimeoutError reports an external call that exceeded its budget. The
// caller of the API may retry.
type TimeoutError struct {
	Stage Stage
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call exceeded its timeout", e.Stage)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// ExternalServiceError reports a non-timeout failure from the embedding,
// generation or vector store capability.
type ExternalServiceError struct {
	Stage Stage
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service error: %v", e.Stage, e.Err)
}
func (e *ExternalServiceError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length does not match the
// store's configured dimension. Fatal configuration error: retrying cannot
// fix an index/model mismatch.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: store expects %d, got %d", e.Want, e.Got)
}

// PartialUpsertError reports that some batch items failed after retries.
// Surfaced as a warning, not a hard failure, since some vectors were
// stored.
type PartialUpsertError struct {
	Succeeded int
	Failed    int
}

func (e *PartialUpsertError) Error() string {
	return fmt.Sprintf("partial upsert failure: %d stored, %d failed after retries", e.Succeeded, e.Failed)
}

// Wrap classifies an error from an external call at the given stage:
// context deadline errors become TimeoutError, everything else becomes
// ExternalServiceError. Errors already carrying a taxonomy type pass
// through unchanged.
func Wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		xe *ExtractionError
		te *TimeoutError
		se *ExternalServiceError
		de *DimensionMismatchError
		pe *PartialUpsertError
	)
	if errors.As(err, &ve) || errors.As(err, &xe) || errors.As(err, &te) ||
		errors.As(err, &se) || errors.As(err, &de) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Stage: stage, Err: err}
	}
	// gRPC transports report an expired call context as a status error
	// that does not unwrap to context.DeadlineExceeded.
	if s, ok := status.FromError(err); ok && s.Code() == codes.DeadlineExceeded {
		return &TimeoutError{Stage: stage, Err: err}
	}
	return &ExternalServiceError{Stage: stage, Err: err}
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsUserError reports whether err should map to a 400-class response.
func IsUserError(err error) bool {
	var ve *ValidationError
	var xe *ExtractionError
	return errors.As(err, &ve) || errors.As(err, &xe)
}
