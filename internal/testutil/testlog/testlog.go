// Package testlog switches logging to the test profile and brackets each
// test's output with its name.
package testlog

import (
	"testing"

	"github.com/danmuck/lanesight/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test.start")
	t.Cleanup(func() {
		log.Info().Str("test", t.Name()).Bool("failed", t.Failed()).Msg("test.end")
	})
}
