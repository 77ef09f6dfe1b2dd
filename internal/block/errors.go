package block

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is against a *TemplateError.
var (
	ErrStructural       = errors.New("structural template error")
	ErrParse            = errors.New("template parse error")
	ErrUnknownReference = errors.New("unknown block reference")
)

// ErrorKind classifies a TemplateError.
type ErrorKind string

const (
	KindStructural       ErrorKind = "structural"
	KindParse            ErrorKind = "parse"
	KindUnknownReference ErrorKind = "unknown-reference"
)

// TemplateError represents a fatal problem with a template source.
type TemplateError struct {
	Kind    ErrorKind
	File    string // Source file path
	BlockID string // Offending block, if known
	Message string
	Hint    string // Helpful suggestion
	Related string // Related information (e.g., the other side of a conflict)
	Err     error  // Underlying parser error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.BlockID != "" {
		b.WriteString(fmt.Sprintf("block %q: ", e.BlockID))
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Format returns a multi-line message for terminal output.
func (e *TemplateError) Format() string {
	var b strings.Builder

	file := e.File
	if file == "" {
		file = "template"
	}
	b.WriteString(fmt.Sprintf("❌ Error in %s\n\n", file))

	if e.BlockID != "" {
		b.WriteString(fmt.Sprintf("Block %s: %s\n", e.BlockID, e.Message))
	} else {
		b.WriteString(e.Message + "\n")
	}
	if e.Err != nil {
		b.WriteString(fmt.Sprintf("  %v\n", e.Err))
	}

	if e.Hint != "" {
		b.WriteString(fmt.Sprintf("\n💡 Tip: %s\n", e.Hint))
	}
	if e.Related != "" {
		b.WriteString(fmt.Sprintf("\n🔗 %s\n", e.Related))
	}

	return b.String()
}

// Unwrap returns the underlying parser error.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *TemplateError) Is(target error) bool {
	switch e.Kind {
	case KindStructural:
		return target == ErrStructural
	case KindParse:
		return target == ErrParse
	case KindUnknownReference:
		return target == ErrUnknownReference
	}
	return false
}

// NewStructuralError creates an error for a malformed block or template.
func NewStructuralError(message string) *TemplateError {
	return &TemplateError{Kind: KindStructural, Message: message}
}

// NewUnknownReferenceError creates an error for a dangling block reference.
func NewUnknownReferenceError(message string) *TemplateError {
	return &TemplateError{Kind: KindUnknownReference, Message: message}
}

// NewParseError wraps a JSON/YAML decoding failure.
func NewParseError(file string, err error) *TemplateError {
	return &TemplateError{Kind: KindParse, File: file, Message: "failed to parse template", Err: err}
}

// WithFile sets the source file.
func (e *TemplateError) WithFile(file string) *TemplateError {
	e.File = file
	return e
}

// WithBlock sets the offending block ID.
func (e *TemplateError) WithBlock(id string) *TemplateError {
	e.BlockID = id
	return e
}

// WithHint adds a helpful hint to the error.
func (e *TemplateError) WithHint(hint string) *TemplateError {
	e.Hint = hint
	return e
}

// WithRelated adds related information to the error.
func (e *TemplateError) WithRelated(related string) *TemplateError {
	e.Related = related
	return e
}

// InFile sets File on err when it is a *TemplateError without one.
func InFile(err error, file string) error {
	var te *TemplateError
	if errors.As(err, &te) && te.File == "" {
		te.File = file
	}
	return err
}
