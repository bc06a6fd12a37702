//go:build linux && (amd64 || arm64)

package framechannel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/lanesight/internal/ipc/sysv"
	"github.com/danmuck/lanesight/internal/testutil/testlog"
)

type sysvProducer struct {
	seg   *sysv.Segment
	mutex *sysv.Semaphore
	cond  *sysv.Semaphore
}

func newSysvProducer(t *testing.T, name string, dims Dims) *sysvProducer {
	t.Helper()
	keys := make([]int, 0, 3)
	for _, sub := range []int{SubIDSegment, SubIDMutex, SubIDCondition} {
		k, err := sysv.Key(name, sub)
		if err != nil {
			t.Fatalf("key sub=%d: %v", sub, err)
		}
		keys = append(keys, k)
	}
	seg, err := sysv.CreateSegment(keys[0], dims.Size())
	if err != nil {
		t.Skipf("sysv shm unavailable: %v", err)
	}
	t.Cleanup(func() { _ = seg.Remove() })
	mutex, err := sysv.CreateSemaphore(keys[1], 1)
	if err != nil {
		t.Skipf("sysv sem unavailable: %v", err)
	}
	t.Cleanup(func() { _ = mutex.Remove() })
	cond, err := sysv.CreateSemaphore(keys[2], 0)
	if err != nil {
		t.Skipf("sysv sem unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cond.Remove() })
	return &sysvProducer{seg: seg, mutex: mutex, cond: cond}
}

func (p *sysvProducer) publish(t *testing.T, b byte) {
	t.Helper()
	if err := p.mutex.Wait(context.Background()); err != nil {
		t.Fatalf("producer lock: %v", err)
	}
	if _, err := p.seg.WriteAt(bytes.Repeat([]byte{b}, p.seg.Size()), 0); err != nil {
		t.Fatalf("producer write: %v", err)
	}
	if err := p.mutex.Post(); err != nil {
		t.Fatalf("producer unlock: %v", err)
	}
	if err := p.cond.Post(); err != nil {
		t.Fatalf("producer notify: %v", err)
	}
}

func TestOpenAndAcquireOverSysV(t *testing.T) {
	testlog.Start(t)
	name := filepath.Join(t.TempDir(), "img.argb")
	if err := os.WriteFile(name, nil, 0o644); err != nil {
		t.Fatalf("write name file: %v", err)
	}
	dims := Dims{Width: 32, Height: 24, BytesPerPixel: 4}
	producer := newSysvProducer(t, name, dims)

	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Dims = dims
	cfg.PollInterval = 10 * time.Millisecond
	ch, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()

	producer.publish(t, 42)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := ch.AcquireFrame(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(frame.Data) != dims.Size() || frame.Data[len(frame.Data)-1] != 42 {
		t.Fatalf("unexpected frame len=%d last=%d", len(frame.Data), frame.Data[len(frame.Data)-1])
	}
	if v, err := producer.mutex.Value(); err != nil || v != 1 {
		t.Fatalf("mutex not released value=%d err=%v", v, err)
	}
}

func TestOpenMissingResources(t *testing.T) {
	testlog.Start(t)
	name := filepath.Join(t.TempDir(), "img.argb")
	if err := os.WriteFile(name, nil, 0o644); err != nil {
		t.Fatalf("write name file: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Name = name
	if _, err := Open(cfg); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}

	cfg.Name = filepath.Join(t.TempDir(), "missing")
	if _, err := Open(cfg); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable for missing name, got %v", err)
	}
}
