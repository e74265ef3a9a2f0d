// Package model defines the value types of the portfind CLI.
//
// This package contains pure data structures with no external dependencies:
// the supported probe networks, the JSON output records, and the exit codes
// (ExitCode) together with the error type (CLIError) that carries them to
// the process exit.
package model
