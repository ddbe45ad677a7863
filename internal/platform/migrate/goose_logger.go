package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// gooseLogger routes goose's printf-style output into slog, tagged so
// migration lines can be filtered from request logs.
type gooseLogger struct {
	logger *slog.Logger
}

func newGooseLogger(logger *slog.Logger) gooseLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return gooseLogger{logger: logger.With("component", "goose")}
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf matches goose's contract: the process exits after logging.
func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}
