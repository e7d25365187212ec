// Package log provides a structured logging interface for textexplain.
//
// The Logger interface is slog-compatible so that the explainer, the model
// selection code and the CLI can log through whichever backend the caller
// installs: log/slog (JSON, Cloud Logging field names) or zerolog (the CLI
// default, console or JSON output).
//
// Example usage:
//
//	logger := log.GetLoggerWithName("interpret").With(
//	    log.ModelNameKey, "ClassicalTextExplainer",
//	    log.RunIDKey, runID,
//	)
//	logger.Info("Grid search finished",
//	    log.OperationKey, log.OperationFit,
//	    log.CandidatesKey, 6,
//	    log.BestScoreKey, 0.71,
//	)
package log

import (
	"context"
)

// Logger は log/slog と同じ呼び出し形のロガーです。fields はキーと値を
// 交互に並べます。Error の先頭に error を渡すと ErrAttrKey に記録されます。
//
//	logger.Error("Loading dataset failed", err,
//	    log.OperationKey, "load",
//	    log.SplitKey, "train",
//	)
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With は fields を常に付与する子ロガーを返します。
	With(fields ...any) Logger

	// Enabled は level のレコードが出力されるかを返します。
	// 語ごとの重み一覧のような重いフィールドを組み立てる前に確認します。
	Enabled(ctx context.Context, level Level) bool
}

// Level は slog.Level と同じ値を使います。
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// LoggerProvider はバックエンド（slog / zerolog / テスト用）ごとのロガー生成口です。
// SetProvider で差し替えます。
type LoggerProvider interface {
	GetLogger() Logger
	// GetLoggerWithName は ComponentKey に name を付けたロガーを返します。
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
