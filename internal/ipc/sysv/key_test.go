//go:build linux

package sysv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyFromStatMatchesFtokLayout(t *testing.T) {
	got := keyFromStat(0x1234, 0xabcdef, 3)
	want := int(int32(0x0334cdef))
	if got != want {
		t.Fatalf("key mismatch got=%#x want=%#x", got, want)
	}
}

func TestKeyIsDeterministicAndDistinctPerProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.argb")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	seen := map[int]int{}
	for project := 1; project <= 3; project++ {
		a, err := Key(path, project)
		if err != nil {
			t.Fatalf("key project=%d: %v", project, err)
		}
		b, err := Key(path, project)
		if err != nil {
			t.Fatalf("key project=%d: %v", project, err)
		}
		if a != b {
			t.Fatalf("key not deterministic project=%d: %#x != %#x", project, a, b)
		}
		if prev, dup := seen[a]; dup {
			t.Fatalf("project %d collides with project %d", project, prev)
		}
		seen[a] = project
	}
}

func TestKeyRejectsInvalidProject(t *testing.T) {
	for _, project := range []int{0, -1, 256} {
		if _, err := Key("/", project); !errors.Is(err, ErrInvalidProject) {
			t.Fatalf("project=%d expected ErrInvalidProject, got %v", project, err)
		}
	}
}

func TestKeyMissingPath(t *testing.T) {
	if _, err := Key(filepath.Join(t.TempDir(), "missing"), 1); err == nil {
		t.Fatalf("expected stat error")
	}
}
