// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr so that they never mix with image data or reports a
// command writes to stdout.
//
// Every rank tags its logger with ForRank so that interleaved output from a
// group can be told apart.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger = logger.ForRank(rank, workers)
//	logger.Info("Run persisted", zap.String("output", path))
//	logger.Error("Scatter failed", zap.Error(err))
package logging
