package observability

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// process is the stamped logger installed by the latest InitLogger. The
// global log.Logger is never modified here, so repeated runs in one process
// do not stack fields.
var process atomic.Pointer[zerolog.Logger]

// InitLogger derives the process logger from the logging profile's base
// logger and tags it with app and run id.
func InitLogger(app, runID string) zerolog.Logger {
	ctx := log.Logger.With().Str("app", app)
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	logger := ctx.Logger()
	process.Store(&logger)
	return logger
}

func processLogger() zerolog.Logger {
	if l := process.Load(); l != nil {
		return *l
	}
	return log.Logger
}

// Component returns a child of the process logger tagged with name.
func Component(name string) zerolog.Logger {
	return processLogger().With().Str("component", name).Logger()
}
