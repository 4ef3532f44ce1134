package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var de *DSHError
	if !stderrors.As(err, &de) {
		de = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", de.Message)
	if de.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", de.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", de.Code)

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Kind       string            `json:"kind"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON renders an error for machine consumers such as the MCP server.
func FormatJSON(err error) string {
	if err == nil {
		return "{}"
	}

	var de *DSHError
	if !stderrors.As(err, &de) {
		de = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       de.Code,
		Message:    de.Message,
		Category:   string(de.Category),
		Severity:   string(de.Severity),
		Kind:       Classify(err).String(),
		Details:    de.Details,
		Suggestion: de.Suggestion,
	}
	if de.Cause != nil {
		je.Cause = de.Cause.Error()
	}

	data, mErr := json.Marshal(je)
	if mErr != nil {
		return fmt.Sprintf(`{"code":%q,"message":%q}`, de.Code, de.Message)
	}
	return string(data)
}

// LogAttrs returns structured attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("kind", Classify(err).String()),
	}

	var de *DSHError
	if stderrors.As(err, &de) {
		attrs = append(attrs,
			slog.String("code", de.Code),
			slog.String("category", string(de.Category)))
		for k, v := range de.Details {
			attrs = append(attrs, slog.String("detail."+k, v))
		}
	}
	return attrs
}
