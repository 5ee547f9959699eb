package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for CLI commands.
//
// It defaults to a no-op logger so that library code can log
// unconditionally; InitCLILogger replaces it during command startup.
var CLILogger = zap.NewNop()

// InitCLILogger configures the CLI logger.
//
// Logs go to stderr so that stdout stays reserved for command output
// (JSON, tables, job ids). Verbose enables debug-level logging with
// caller annotations.
func InitCLILogger(version string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
	}

	logger, err := cfg.Build(zap.Fields(zap.String("app_version", version)))
	if err != nil {
		// Fall back to a no-op logger rather than failing command startup.
		CLILogger = zap.NewNop()
		return
	}
	CLILogger = logger
}

// Sync flushes buffered log entries. Safe to call on a no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
