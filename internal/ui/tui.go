// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program that watches a running session
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run creates the program for m; the caller runs it
func Run(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}
