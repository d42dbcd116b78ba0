package formats

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"vconv/internal/services"
)

// ValidationKind classifies why an upload was rejected.
type ValidationKind string

const (
	KindUnsupportedFormat ValidationKind = "unsupportedFormat"
	KindFileTooLarge      ValidationKind = "fileTooLarge"
	KindSameFormat        ValidationKind = "sameFormat"
)

// ValidationError reports a rejected upload. No job is created for it.
type ValidationError struct {
	Kind   ValidationKind
	Name   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Name == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Detail)
}

// Unwrap lets callers match validation failures with errors.Is(err, services.ErrValidation).
func (e *ValidationError) Unwrap() error { return services.ErrValidation }

// Validate checks an upload against the supported set, the size cap, and the
// requested target. Checks run in that order; the first failure wins.
// A maxBytes of zero or less applies DefaultMaxInputBytes.
func Validate(name string, size int64, target string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}
	source := SourceFormat(name)
	if !IsSupported(source) {
		return &ValidationError{
			Kind:   KindUnsupportedFormat,
			Name:   name,
			Detail: fmt.Sprintf("unsupported file format %q", source),
		}
	}
	if !IsSupported(target) {
		return &ValidationError{
			Kind:   KindUnsupportedFormat,
			Name:   name,
			Detail: fmt.Sprintf("unsupported target format %q", Normalize(target)),
		}
	}
	if size > maxBytes {
		return &ValidationError{
			Kind:   KindFileTooLarge,
			Name:   name,
			Detail: fmt.Sprintf("file too large (%s, max %s)", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxBytes))),
		}
	}
	if source == Normalize(target) {
		return &ValidationError{
			Kind:   KindSameFormat,
			Name:   name,
			Detail: fmt.Sprintf("source and target format are both %s", source),
		}
	}
	return nil
}
