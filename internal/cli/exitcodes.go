// Package cli provides shared utilities for the mina command line.
package cli

// Exit codes shared by all commands.
const (
	// ExitOK indicates success.
	ExitOK = 0

	// ExitError indicates the build or command failed: a missing root
	// manifest, a bundle without a runtime chunk, an unreadable config.
	ExitError = 1

	// ExitUsage indicates invalid flags or arguments.
	ExitUsage = 2
)
