package ui

import "github.com/charmbracelet/lipgloss"

// Color palette, ANSI 256 codes.
const (
	ColorAccent   = "39"  // Primary accent, bright blue
	ColorAccentLo = "31"  // Dimmed accent for inactive stages
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Box borders, separators
	ColorGreen    = "42"  // Success
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds all UI styles.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Stage   lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Speed   lipgloss.Style
	Border  lipgloss.Style
}

// DefaultStyles returns colored styles for TUI mode.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Stage:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentLo)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Speed:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns unstyled components.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header: plain, Success: plain, Warning: plain, Error: plain, Dim: plain,
		Stage: plain, Active: plain, Label: plain, Speed: plain, Border: plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
