package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fatih/color"
	"go.uber.org/multierr"

	"resourcegraph/internal/apierr"
)

// Exit codes. Request errors map through their HTTP-style status.
const (
	exitOK            = 0
	exitInternal      = 1
	exitBadRequest    = 2
	exitForbidden     = 3
	exitNotFound      = 4
	exitConflict      = 5
	exitUnprocessable = 6
	exitUsage         = 64
)

// usageError marks failures in the command line or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	switch apierr.Status(err) {
	case http.StatusBadRequest:
		return exitBadRequest
	case http.StatusForbidden:
		return exitForbidden
	case http.StatusNotFound:
		return exitNotFound
	case http.StatusConflict:
		return exitConflict
	case http.StatusUnprocessableEntity:
		return exitUnprocessable
	}
	return exitInternal
}

// errorObject is one entry of an error document.
type errorObject struct {
	Status  int            `json:"status"`
	Kind    apierr.Kind    `json:"kind"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
	// Causes lists the individual failures of an aggregated error.
	Causes []string `json:"causes,omitempty"`
}

// reportError writes err as an error document on stdout when it is a
// request error, and as a line on stderr otherwise. It returns the exit code.
func reportError(stdout, stderr io.Writer, err error) int {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		color.New(color.FgRed, color.Bold).Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	obj := errorObject{
		Status:  apierr.Status(err),
		Kind:    apiErr.Kind,
		Message: apiErr.Error(),
		Field:   apiErr.Field,
		Detail:  apiErr.Detail,
	}
	if apiErr.Kind == apierr.SerializationException {
		obj.Message = apiErr.Message
		for _, cause := range multierr.Errors(apiErr.Cause) {
			obj.Causes = append(obj.Causes, cause.Error())
		}
	}
	if werr := writeJSON(stdout, map[string]any{"errors": []errorObject{obj}}); werr != nil {
		color.New(color.FgRed, color.Bold).Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
