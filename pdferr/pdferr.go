// Package pdferr defines the error kinds every engine operation reports.
package pdferr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDocumentLoad
	KindDocumentProcessing
	KindMemoryExceeded
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDocumentLoad:
		return "document_load"
	case KindDocumentProcessing:
		return "document_processing"
	case KindMemoryExceeded:
		return "memory_exceeded"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is the single error type surfaced by operations. Fields other than
// Kind and Msg are optional and only set when known.
type Error struct {
	Kind Kind
	Op   string
	File string
	// Page is the 0-based page index, or -1 when not page specific.
	Page int
	Size int64
	Msg  string
	Err  error

	Budget    time.Duration
	Usage     float64
	Threshold float64
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Page: -1, Msg: fmt.Sprintf(format, args...)}
}

// InvalidFile is a validation error tied to one input file.
func InvalidFile(file string, size int64, format string, args ...any) *Error {
	e := Validationf(format, args...)
	e.File, e.Size = file, size
	return e
}

func Load(file string, err error) *Error {
	return &Error{
		Kind: KindDocumentLoad,
		File: file,
		Page: -1,
		Msg:  fmt.Sprintf("Failed to load PDF: %s. The file may be corrupted or password protected.", file),
		Err:  err,
	}
}

func Processing(op string, err error) *Error {
	return &Error{Kind: KindDocumentProcessing, Op: op, Page: -1, Err: err}
}

func Processingf(op, format string, args ...any) *Error {
	return &Error{Kind: KindDocumentProcessing, Op: op, Page: -1, Msg: fmt.Sprintf(format, args...)}
}

// PageFailure wraps a failure confined to a single page.
func PageFailure(op string, page int, err error) *Error {
	return &Error{Kind: KindDocumentProcessing, Op: op, Page: page, Msg: fmt.Sprintf("page %d", page+1), Err: err}
}

func Memory(usage, threshold float64) *Error {
	return &Error{
		Kind:      KindMemoryExceeded,
		Page:      -1,
		Msg:       fmt.Sprintf("memory usage %.0f%% exceeds the %.0f%% threshold", usage*100, threshold*100),
		Usage:     usage,
		Threshold: threshold,
	}
}

func Timeout(budget time.Duration, msg string) *Error {
	if msg == "" {
		msg = "Operation timed out"
	}
	return &Error{Kind: KindTimeout, Page: -1, Msg: fmt.Sprintf("%s after %s", msg, budget), Budget: budget}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
