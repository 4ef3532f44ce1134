// Package mcp exposes dataset search over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates the local index cannot be read.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeSearchFailed indicates the search engine returned an error.
	ErrCodeSearchFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeDatasetNotFound indicates no dataset has the given identifier.
	ErrCodeDatasetNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, store.ErrNotFound):
		return &MCPError{Code: ErrCodeDatasetNotFound, Message: "Dataset not found."}
	case errors.Is(err, dsherrors.ErrEmptyQuery):
		return NewInvalidParamsError("query cannot be empty or whitespace only")
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: err.Error()}
	}

	var de *dsherrors.DSHError
	if errors.As(err, &de) {
		return mapDSHError(de)
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}

func mapDSHError(de *dsherrors.DSHError) *MCPError {
	message := de.Message
	if de.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", de.Message, de.Suggestion)
	}

	switch de.Category {
	case dsherrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case dsherrors.CategoryStorage:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case dsherrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		if de.Code == dsherrors.ErrCodeSearchFailed {
			return &MCPError{Code: ErrCodeSearchFailed, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an invalid params error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}

// NewMethodNotFoundError creates a method not found error.
func NewMethodNotFoundError(method string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("%s: %s", ErrToolNotFound, method),
	}
}
