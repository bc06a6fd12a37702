package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/lanesight/internal/service"
	"github.com/danmuck/lanesight/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func stubRunner(t *testing.T) *service.ServiceConfig {
	t.Helper()
	var got service.ServiceConfig
	prev := runner
	runner = func(_ context.Context, cfg service.ServiceConfig) error {
		got = cfg
		return nil
	}
	t.Cleanup(func() { runner = prev })
	return &got
}

func TestRunFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	got := stubRunner(t)
	path := filepath.Join(t.TempDir(), "lanesight.toml")
	require.NoError(t, os.WriteFile(path, []byte("cid = 112\nshm_name = \"/tmp/file.argb\"\nadmin_addr = \":9000\"\n"), 0o600))

	_, err := runCmd(t, "run", "--config", path, "--cid", "253", "--transport", "redis", "--redis-addr", "127.0.0.1:6400")
	require.NoError(t, err)
	assert.Equal(t, uint16(253), got.Session.CID)
	assert.Equal(t, "/tmp/file.argb", got.Channel.Name)
	assert.Equal(t, service.TransportRedis, got.Transport)
	assert.Equal(t, "127.0.0.1:6400", got.Redis.Addr)
	assert.Equal(t, ":9000", got.AdminListenAddr)
}

func TestRunDefaultsWithoutConfig(t *testing.T) {
	testlog.Start(t)
	got := stubRunner(t)
	_, err := runCmd(t, "run", "--shm-name", "/tmp/cam.argb")
	require.NoError(t, err)
	want := service.DefaultServiceConfig()
	want.Channel.Name = "/tmp/cam.argb"
	assert.Equal(t, want, *got)
}

func TestRunRejectsBadFlags(t *testing.T) {
	testlog.Start(t)
	stubRunner(t)
	for _, args := range [][]string{
		{"run", "--cid", "0"},
		{"run", "--transport", "serial"},
		{"run", "--config", filepath.Join(t.TempDir(), "missing.toml")},
	} {
		_, err := runCmd(t, args...)
		var se *service.SubsystemError
		require.ErrorAs(t, err, &se, "%v", args)
		assert.Equal(t, service.SubsystemConfig, se.Subsystem)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	testlog.Start(t)
	out, err := runCmd(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "cid = 253")

	path := filepath.Join(t.TempDir(), "lanesight.toml")
	out, err = runCmd(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = runCmd(t, "config", "init", "-o", path)
	assert.Error(t, err)

	out, err = runCmd(t, "config", "show", "-c", path, "--cid", "112")
	require.NoError(t, err)
	assert.Contains(t, out, "cid = 112")
	assert.True(t, strings.Contains(out, "transport = 'udp'") || strings.Contains(out, `transport = "udp"`))
}

func TestVersionFlag(t *testing.T) {
	testlog.Start(t)
	out, err := runCmd(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, service.Version+"\n", out)
}

func TestExampleConfigIsValid(t *testing.T) {
	testlog.Start(t)
	got := stubRunner(t)
	_, err := runCmd(t, "run", "-c", "ex.config.toml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9470", got.AdminListenAddr)
	assert.Equal(t, uint16(253), got.Session.CID)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "lanesight.toml")
	require.NoError(t, os.WriteFile(path, []byte("redis_password = \"hunter2\"\nadmin_token = \"s3cret\"\n"), 0o600))

	out, err := runCmd(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "<redacted>")
}

func TestExecuteHandsRunnerACancellableContext(t *testing.T) {
	testlog.Start(t)
	var got context.Context
	prev := runner
	runner = func(ctx context.Context, _ service.ServiceConfig) error {
		got = ctx
		return nil
	}
	t.Cleanup(func() { runner = prev })

	require.NoError(t, execute([]string{"run"}))
	require.NotNil(t, got)
	assert.NotNil(t, got.Done())
}
