package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/lanesight/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLoggerDoesNotStackRuns(t *testing.T) {
	testlog.Start(t)
	prevGlobal, prevProcess := log.Logger, process.Load()
	t.Cleanup(func() {
		log.Logger = prevGlobal
		process.Store(prevProcess)
	})

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)
	InitLogger("lanesight", "run-1")
	InitLogger("lanesight", "run-2")
	sessionLog := Component("session")
	sessionLog.Info().Msg("hello")

	line := buf.String()
	if n := strings.Count(line, `"run_id"`); n != 1 {
		t.Fatalf("run_id fields=%d line=%s", n, line)
	}
	if n := strings.Count(line, `"app"`); n != 1 {
		t.Fatalf("app fields=%d line=%s", n, line)
	}
	if !strings.Contains(line, `"run_id":"run-2"`) || !strings.Contains(line, `"component":"session"`) {
		t.Fatalf("unexpected line=%s", line)
	}

	buf.Reset()
	log.Info().Msg("global")
	if strings.Contains(buf.String(), "run_id") {
		t.Fatalf("global logger was stamped: %s", buf.String())
	}
}
