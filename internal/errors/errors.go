// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides user-facing errors for the codedoc CLI.
//
// A UserError answers three questions: what went wrong (Message), why
// (Cause) and what to do about it (Fix). Each category maps to its own exit
// code so scripts can branch on the failure.
//
//	return errors.NewConfigError(
//	    "No completion credential",
//	    "OPENROUTER_API_KEY is not set",
//	    "Export OPENROUTER_API_KEY or add it to .env",
//	    err,
//	)
//
// Format renders the error for a terminal; ToJSON renders it for --json.
// FromError turns well-known sentinel errors from the pipeline packages into
// a UserError with a suggested fix.
//
// # Exit Codes
//
//   - ExitSuccess (0)
//   - ExitConfig (1): missing credential, invalid configuration
//   - ExitStorage (2): history database failures
//   - ExitNetwork (3): clone or completion transport failures
//   - ExitInput (4): bad arguments, unusable corpus
//   - ExitPermission (5)
//   - ExitNotFound (6)
//   - ExitCanceled (130): interrupted by the user
//   - ExitInternal (10): bugs
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/llm"
)

// Exit codes for different error categories.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitStorage    = 2
	ExitNetwork    = 3
	ExitInput      = 4
	ExitPermission = 5
	ExitNotFound   = 6
	ExitInternal   = 10
	ExitCanceled   = 130
)

// UserError is an error with a cause, a suggested fix and an exit code.
type UserError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int

	// Err is the wrapped error, visible to errors.Is and errors.As.
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func newUserError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError reports a missing credential or an invalid configuration.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitConfig, msg, cause, fix, err)
}

// NewStorageError reports a history database failure.
func NewStorageError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitStorage, msg, cause, fix, err)
}

// NewNetworkError reports a transport failure (clone, completion service).
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError reports invalid arguments or an unusable corpus.
func NewInputError(msg, cause, fix string) *UserError {
	return newUserError(ExitInput, msg, cause, fix, nil)
}

func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitPermission, msg, cause, fix, err)
}

func NewNotFoundError(msg, cause, fix string) *UserError {
	return newUserError(ExitNotFound, msg, cause, fix, nil)
}

// NewCanceledError reports a run interrupted by the user.
func NewCanceledError(msg string, err error) *UserError {
	return newUserError(ExitCanceled, msg, "The run was interrupted", "Re-run the command to start over", err)
}

// NewInternalError reports a bug.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitInternal, msg, cause, fix, err)
}

// FromError converts err into a UserError. Known sentinels get a specific
// category and fix; anything else becomes an internal error. A UserError is
// returned unchanged.
func FromError(err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}

	switch {
	case stderrors.Is(err, llm.ErrMissingCredential):
		return NewConfigError("No completion credential configured",
			err.Error(),
			"Set OPENROUTER_API_KEY (or the key for your provider) in the environment or .env",
			err)
	case stderrors.Is(err, corpus.ErrEmptyCorpus):
		return newUserError(ExitInput, "No source files to explain",
			"Nothing matched the extension allowlist and exclusion rules",
			"Check the path, or adjust extensions and exclude_globs in .codedoc/project.yaml",
			err)
	case stderrors.Is(err, corpus.ErrInvalidArchive):
		return newUserError(ExitInput, "Not a zip archive", err.Error(), "Pass a .zip file, a directory or a git URL", err)
	case stderrors.Is(err, corpus.ErrUnsafeArchive):
		return newUserError(ExitInput, "Archive rejected", err.Error(), "Re-create the zip without absolute or '..' paths", err)
	case stderrors.Is(err, context.Canceled):
		return NewCanceledError("Run canceled", err)
	case stderrors.Is(err, os.ErrPermission):
		return NewPermissionError("Permission denied", err.Error(), "Check file permissions or choose another --output directory", err)
	case stderrors.Is(err, os.ErrNotExist):
		return newUserError(ExitNotFound, "Path not found", err.Error(), "Check the path and try again", err)
	}
	return NewInternalError("Unexpected error", err.Error(), "Re-run with --debug and report the output", err)
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Empty Cause or Fix lines are
// omitted. NO_COLOR is honored.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the --json form of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// Report writes err to w and returns the exit code to use.
func Report(w io.Writer, err error, jsonOutput, noColor bool) int {
	if err == nil {
		return ExitSuccess
	}
	ue := FromError(err)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ue.ToJSON())
	} else {
		fmt.Fprint(w, ue.Format(noColor))
	}
	return ue.ExitCode
}

// FatalError reports err on stderr and exits. It never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	os.Exit(Report(os.Stderr, err, jsonOutput, false))
}
