// Package debug provides category-gated diagnostic logging.
//
// Categories select WHAT to trace (AINB_DEBUG env or config), the log
// level selects HOW MUCH (AINB_LOG_LEVEL env or config). The two are
// independent: a category must be enabled before its level matters.
//
//	debug.Log("provider", "request", "method", "POST", "url", url)
//	if debug.Enabled("provider") { /* expensive formatting */ }
//
// Known categories: engine, sandbox, provider, catalog, settings,
// transport, auth, config. "all" enables every category. Levels:
// ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, full untruncated
// message envelopes and provider bodies are emitted.
const LevelTrace = slog.LevelDebug - 4

// categories is written by Init and the package init only; reads after
// startup are unsynchronized.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("AINB_DEBUG"))
}

// Init applies the configured categories and level and installs the
// default slog handler. Environment variables win over config values.
func Init(configCategories, configLevel string) {
	categories = parseCategories(cmp.Or(os.Getenv("AINB_DEBUG"), configCategories))

	level := cmp.Or(os.Getenv("AINB_LOG_LEVEL"), configLevel, "INFO")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

// Enabled reports whether the category is active.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug-level message when the category is active.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message when the category is active. Only
// visible with AINB_LOG_LEVEL=TRACE.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// Raw writes plain text to stderr, skipping slog formatting. Meant for
// copy-paste-ready payloads. Emitted only when the category is active
// and the level is TRACE.
func Raw(category, text string) {
	if !Enabled(category) || !slog.Default().Enabled(nil, LevelTrace) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// Truncate shortens s to maxLen characters, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		if cat = strings.TrimSpace(strings.ToLower(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}
