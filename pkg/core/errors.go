// Package core provides shared error and HTTP plumbing for the extraction pipeline.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode defines standard error codes surfaced by the pipeline and its tools
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidArea      ErrorCode = "INVALID_AREA"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// MCPError represents a detailed error structure for tool responses
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds query information to the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for external service failures
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch {
	case statusCode == http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try reducing the extraction area."
	case statusCode == http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The service rejected the query. Check the area and layer parameters."
	case statusCode >= 500:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later or modify your request parameters."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// InvalidAreaError reports that no usable bounding box could be resolved
// from the request. It is the only error that aborts an extraction.
type InvalidAreaError struct {
	Reason string
	Err    error
}

// NewInvalidAreaError creates an InvalidAreaError with a formatted reason
func NewInvalidAreaError(format string, args ...any) *InvalidAreaError {
	return &InvalidAreaError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidAreaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid area: %s: %v", e.Reason, e.Err)
	}
	return "invalid area: " + e.Reason
}

func (e *InvalidAreaError) Unwrap() error { return e.Err }

// MCPError converts the error into the structured tool error form
func (e *InvalidAreaError) MCPError() *MCPError {
	return NewError(ErrInvalidArea, e.Error()).
		WithGuidance("Provide either a bbox with min_lon < max_lon and min_lat < max_lat, or a closed GeoJSON Polygon").
		WithSuggestions(
			`{"bbox": {"min_lon": 44.50, "min_lat": 40.17, "max_lon": 44.52, "max_lat": 40.19}}`,
			`{"polygon": "{\"type\":\"Polygon\",\"coordinates\":[[[44.5,40.17],[44.52,40.17],[44.52,40.19],[44.5,40.17]]]}"}`,
		)
}

// LayerFetchError records that the source call backing a layer failed.
// The pipeline recovers from it by degrading that layer only.
type LayerFetchError struct {
	Layer string
	Err   error
}

func (e *LayerFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Layer, e.Err)
}

func (e *LayerFetchError) Unwrap() error { return e.Err }

// Code returns the error code of the wrapped MCPError, if any
func (e *LayerFetchError) Code() string {
	var mcpErr *MCPError
	if errors.As(e.Err, &mcpErr) {
		return mcpErr.Code
	}
	return string(ErrNetworkError)
}
