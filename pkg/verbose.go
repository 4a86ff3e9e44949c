package nanodc

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalVerboseLevel atomic.Int32

	debugMu    sync.RWMutex
	debugFlags map[string]bool

	loggerMu     sync.RWMutex
	globalLogger *zap.SugaredLogger
)

func init() {
	logger, err := NewLogger("console", "info")
	if err != nil {
		logger = zap.NewNop()
	}
	globalLogger = logger.Sugar()
}

// NewLogger builds a zap logger writing to stderr. format is "console" or
// "json"; level is any zap level name and falls back to info.
func NewLogger(format, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build(zap.AddCallerSkip(1))
}

// SetLogger replaces the package logger.
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = logger.Sugar()
}

// Logger returns the package logger.
func Logger() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// SetVerboseLevel sets the global verbose level
func SetVerboseLevel(level int) {
	globalVerboseLevel.Store(int32(level))
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return int(globalVerboseLevel.Load())
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if GetVerboseLevel() < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	Logger().Debugw("enter", "func", funcName)

	return func() {
		Logger().Debugw("exit", "func", funcName)
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if GetVerboseLevel() >= level {
		Logger().With("verbose", level).Infof(strings.TrimSuffix(format, "\n"), args...)
	}
}

// Warnf logs a non-fatal problem.
func Warnf(format string, args ...interface{}) {
	Logger().Warnf(format, args...)
}

// debugLog logs under a debug flag, e.g. debugLog("scan", "found %s", path).
func debugLog(flag string, format string, args ...interface{}) {
	if IsDebugEnabled(flag) {
		Logger().With("debug", flag).Infof(format, args...)
	}
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("scan,refresh") and key:value format ("scan:true,hash:false")
func SetDebugFlags(flagsStr string) {
	flags := make(map[string]bool)
	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		flags[flagName] = flagValue
	}

	debugMu.Lock()
	debugFlags = flags
	debugMu.Unlock()
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}
