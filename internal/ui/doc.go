// Package ui holds the terminal styles used by the umx command output.
//
// Styles are plain [lipgloss] renderers; when stdout is not a terminal lipgloss
// drops the colors, so piped and logged output stays plain text.
package ui
