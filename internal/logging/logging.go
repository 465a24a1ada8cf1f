package logging

import (
	"log/slog"
	"os"
)

// SubSystem tags every log line so dashboard and ledger noise can be
// filtered apart.
type SubSystem string

const (
	Server    SubSystem = "server"
	Ledger    SubSystem = "ledger"
	Chain     SubSystem = "chain"
	Auth      SubSystem = "auth"
	Contracts SubSystem = "contracts"
	Telemetry SubSystem = "telemetry"
	System    SubSystem = "system"
)

// Setup installs the default JSON logger at the given level ("debug",
// "info", "warn", "error").
func Setup(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func Debug(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Debug(msg, withSubsystem(subSystem, keyvals)...)
}

func Info(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Info(msg, withSubsystem(subSystem, keyvals)...)
}

func Warn(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Warn(msg, withSubsystem(subSystem, keyvals)...)
}

func Error(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Error(msg, withSubsystem(subSystem, keyvals)...)
}

func withSubsystem(subSystem SubSystem, keyvals []interface{}) []interface{} {
	return append([]interface{}{"subsystem", string(subSystem)}, keyvals...)
}
