// Package logging provides config-driven categorized logging for memoryd.
// Every category is a named zap logger sharing one core and one atomic level,
// so the level can be changed at runtime without rebuilding loggers.
// Until Initialize is called all loggers are no-ops.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, shutdown, wiring
	CategoryConfig    Category = "config"    // Config loading and hot reload
	CategoryAPI       Category = "api"       // HTTP requests and handler errors
	CategoryRegistry  Category = "registry"  // Display-name registry and names.json
	CategoryUsage     Category = "usage"     // Cost ledger, activity log, telemetry
	CategoryStats     Category = "stats"     // Project and global aggregation
	CategoryStore     Category = "store"     // SQLite record store
	CategoryEmbedding Category = "embedding" // Embedding providers and cache
	CategoryAudit     Category = "audit"     // State-changing operations
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Categories map[string]bool `yaml:"categories"`
}

// Logger is a category-scoped logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the shared zap core from cfg. Safe to call again;
// previously returned loggers keep writing to the old core.
func Initialize(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "console", "text":
		zcfg = zap.NewDevelopmentConfig()
	case "json", "":
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return fmt.Errorf("unknown log format %q (use json or console)", cfg.Format)
	}
	level.SetLevel(lvl)
	zcfg.Level = level

	built, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	install(built, cfg.Categories)
	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s", lvl, cfg.Format)
	return nil
}

// UseCore installs a caller-provided core. Tests use it with zaptest/observer.
func UseCore(core zapcore.Core) {
	install(zap.New(core), nil)
}

func install(l *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

// ParseLevel converts a config string to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// SetLevel changes the level of every logger built by Initialize.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	if level.Level() != lvl {
		level.SetLevel(lvl)
		Get(CategoryConfig).Info("log level changed to %s", lvl)
	}
	return nil
}

// CurrentLevel returns the active level name.
func CurrentLevel() string {
	return level.Level().String()
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories not listed in the config are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Zap exposes the underlying structured logger.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Registry logs to the registry category
func Registry(format string, args ...interface{}) { Get(CategoryRegistry).Info(format, args...) }

// RegistryDebug logs debug to the registry category
func RegistryDebug(format string, args ...interface{}) {
	Get(CategoryRegistry).Debug(format, args...)
}

// Usage logs to the usage category
func Usage(format string, args ...interface{}) { Get(CategoryUsage).Info(format, args...) }

// UsageDebug logs debug to the usage category
func UsageDebug(format string, args ...interface{}) { Get(CategoryUsage).Debug(format, args...) }

// Stats logs to the stats category
func Stats(format string, args ...interface{}) { Get(CategoryStats).Info(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs debug to the embedding category
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
