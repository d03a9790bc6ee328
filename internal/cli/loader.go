package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/bip/internal/compiler"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast keeps only the first compile error.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading specs from a directory.
type LoadResult struct {
	Project   *compiler.Project
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

// Error returns "code: message". Message already carries the position of
// compiler errors.
func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by all commands. Validation findings use the
// compiler's E1xx codes.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load or unification failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeCompileFailed = "E006" // Component or glue did not compile
	ErrCodeWriteFailed   = "E007" // File write error
)

// LoadSpecs loads and compiles every CUE file directly inside dir.
//
// A nil result means the directory could not be loaded at all; compile
// errors come back with a non-nil result whose project is partial.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	value, err := compiler.LoadFiles(files...)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	project, compileErrs := compiler.CompileProject(value)
	result := &LoadResult{Project: project, FileCount: len(files)}
	if len(compileErrs) == 0 {
		return result, nil
	}
	if mode == LoadModeFailFast {
		compileErrs = compileErrs[:1]
	}
	errs := make([]error, len(compileErrs))
	for i, e := range compileErrs {
		errs[i] = convertCompileError(e, ErrCodeCompileFailed)
	}
	return result, errs
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}

// convertCompileError converts a compiler error to a LoadError, keeping the
// CUE position when there is one.
func convertCompileError(err error, code string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{Code: code, Message: err.Error(), Pos: compileErr.Pos}
	}
	return &LoadError{Code: code, Message: err.Error()}
}

// loadProject loads dir in fail-fast mode and returns the first error.
func loadProject(dir string) (*compiler.Project, error) {
	res, errs := LoadSpecs(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Project, nil
}
