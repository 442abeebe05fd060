package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
)

// WithRecovery turns handler panics into 500 responses and logs them.
func WithRecovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return handlers.RecoveryHandler(
			handlers.RecoveryLogger(panicLogger{logger: logger}),
			handlers.PrintRecoveryStack(false),
		)(next)
	}
}

type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", "panic", v)
}
