// Package logging configures structured logging for splitdex.
//
// Human-readable records go to stderr. When a log file is requested (always
// with --debug), the same records are also written as JSON to a
// size-rotated file under ~/.splitdex/logs/, so a long run leaves a
// machine-readable trail of every retry and batch outcome.
package logging
