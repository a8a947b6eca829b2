// Package logger は構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDevelopment は開発用のテキスト形式ロガーを生成して返す。
// DEBUGレベルまで出力し、ソース位置を含める。
func SetupDevelopment(w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetupForEnv は環境名に応じたロガーをグローバルロガーとして設定する。
// "development" の場合のみテキスト形式、それ以外はJSON形式になる。
func SetupForEnv(w io.Writer, environment string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w)
	if environment == "development" {
		l = SetupDevelopment(w)
	}
	slog.SetDefault(l)
	return l
}
