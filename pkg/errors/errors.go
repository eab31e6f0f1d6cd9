/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v53/github"
)

// ErrorType represents different types of errors that can occur
type ErrorType int

const (
	// Configuration errors
	ErrorTypeConfig ErrorType = iota
	// Workflow loading or parsing errors
	ErrorTypeWorkflow
	// Rule execution errors
	ErrorTypeRule
	// A rule could not be built from the audit state
	ErrorTypeConstruction
	// A finding references a key path absent from its workflow
	ErrorTypeLocationResolution
	// Connection or timeout failure talking to a remote API
	ErrorTypeTransport
	// Non-2xx response that is not a defined "not found" outcome
	ErrorTypeHTTPStatus
	// Response body did not match the expected shape
	ErrorTypeDecode
	// Report generation errors
	ErrorTypeReport
	// Validation errors
	ErrorTypeValidation
)

var typeNames = map[ErrorType]string{
	ErrorTypeConfig:             "config",
	ErrorTypeWorkflow:           "workflow",
	ErrorTypeRule:               "rule",
	ErrorTypeConstruction:       "construction",
	ErrorTypeLocationResolution: "location-resolution",
	ErrorTypeTransport:          "transport",
	ErrorTypeHTTPStatus:         "http-status",
	ErrorTypeDecode:             "decode",
	ErrorTypeReport:             "report",
	ErrorTypeValidation:         "validation",
}

func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// AuditError represents a structured error with context
type AuditError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Details     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *AuditError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	if len(e.Details) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Details {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *AuditError) Is(target error) bool {
	if t, ok := target.(*AuditError); ok {
		return e.Type == t.Type
	}
	return false
}

// UserFriendlyMessage returns a user-friendly error message with suggestions
func (e *AuditError) UserFriendlyMessage() string {
	var sb strings.Builder
	sb.WriteString("❌ ")
	sb.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n\n💡 Suggestions:")
		for _, suggestion := range e.Suggestions {
			sb.WriteString("\n   • ")
			sb.WriteString(suggestion)
		}
	}

	return sb.String()
}

// IsType reports whether any error in err's chain is an AuditError of the given type
func IsType(err error, t ErrorType) bool {
	return stderrors.Is(err, &AuditError{Type: t})
}

func newError(t ErrorType, message string, cause error, details map[string]interface{}, suggestions []string) *AuditError {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &AuditError{
		Type:        t,
		Message:     message,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error, suggestions ...string) *AuditError {
	return newError(ErrorTypeConfig, message, cause, nil, suggestions)
}

// NewWorkflowError creates a workflow loading error
func NewWorkflowError(message string, cause error, workflowPath string, suggestions ...string) *AuditError {
	details := make(map[string]interface{})
	if workflowPath != "" {
		details["workflow"] = workflowPath
	}
	return newError(ErrorTypeWorkflow, message, cause, details, suggestions)
}

// NewRuleError creates a rule execution error
func NewRuleError(message string, cause error, ruleID string) *AuditError {
	details := make(map[string]interface{})
	if ruleID != "" {
		details["rule"] = ruleID
	}
	return newError(ErrorTypeRule, message, cause, details, nil)
}

// NewConstructionError creates an error for a rule that cannot be built
func NewConstructionError(ruleID string, cause error) *AuditError {
	return newError(ErrorTypeConstruction, "failed to construct rule", cause,
		map[string]interface{}{"rule": ruleID}, nil)
}

// NewLocationError creates an error for a location that does not resolve
func NewLocationError(route string, workflowPath string, cause error) *AuditError {
	return newError(ErrorTypeLocationResolution, "finding location does not resolve", cause,
		map[string]interface{}{"route": route, "workflow": workflowPath}, nil)
}

// NewReportError creates a report generation error
func NewReportError(message string, cause error, outputPath string) *AuditError {
	details := make(map[string]interface{})
	if outputPath != "" {
		details["output"] = outputPath
	}
	return newError(ErrorTypeReport, message, cause, details, nil)
}

// NewValidationError creates a validation error
func NewValidationError(message string, field string, value interface{}, suggestions ...string) *AuditError {
	details := make(map[string]interface{})
	if field != "" {
		details["field"] = field
	}
	if value != nil {
		details["value"] = value
	}
	return newError(ErrorTypeValidation, message, nil, details, suggestions)
}

// Classify wraps an error returned by the GitHub API client into the
// transport, HTTP status or decode category. Errors that are already
// classified are returned unchanged.
func Classify(message string, err error) error {
	if err == nil {
		return nil
	}

	var already *AuditError
	if stderrors.As(err, &already) {
		return err
	}

	var (
		rateErr   *github.RateLimitError
		abuseErr  *github.AbuseRateLimitError
		respErr   *github.ErrorResponse
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		urlErr    *url.Error
		netErr    net.Error
	)

	switch {
	case stderrors.As(err, &rateErr):
		return newError(ErrorTypeHTTPStatus, message, err, statusDetails(rateErr.Response), nil)
	case stderrors.As(err, &abuseErr):
		return newError(ErrorTypeHTTPStatus, message, err, statusDetails(abuseErr.Response), nil)
	case stderrors.As(err, &respErr):
		return newError(ErrorTypeHTTPStatus, message, err, statusDetails(respErr.Response), nil)
	case stderrors.As(err, &syntaxErr), stderrors.As(err, &typeErr):
		return newError(ErrorTypeDecode, message, err, nil, nil)
	case stderrors.As(err, &urlErr), stderrors.As(err, &netErr):
		return newError(ErrorTypeTransport, message, err, nil, nil)
	}

	// go-github reports a truncated or empty body as io.ErrUnexpectedEOF
	// from the JSON decoder.
	if stderrors.Is(err, io.ErrUnexpectedEOF) {
		return newError(ErrorTypeDecode, message, err, nil, nil)
	}
	return newError(ErrorTypeTransport, message, err, nil, nil)
}

func statusDetails(resp *http.Response) map[string]interface{} {
	details := make(map[string]interface{})
	if resp != nil {
		details["status"] = resp.StatusCode
	}
	return details
}
