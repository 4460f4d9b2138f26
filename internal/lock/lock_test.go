package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "127.0.0.1:7420")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "LOCK"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	h := parse(string(data))
	if h.PID != os.Getpid() || h.Addr != "127.0.0.1:7420" || h.Started.IsZero() {
		t.Errorf("holder = %+v", h)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "LOCK")); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "127.0.0.1:7420")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, "127.0.0.1:7421")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var lockErr *LockHeldError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if lockErr.Holder.Addr != "127.0.0.1:7420" {
		t.Errorf("holder addr = %q, want the first daemon's", lockErr.Holder.Addr)
	}
}

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()

	if _, ok, err := Read(tmpDir); err != nil || ok {
		t.Fatalf("Read() on empty dir = ok:%v err:%v", ok, err)
	}

	l, err := Acquire(tmpDir, "127.0.0.1:7420")
	if err != nil {
		t.Fatal(err)
	}
	h, ok, err := Read(tmpDir)
	if err != nil || !ok {
		t.Fatalf("Read() = ok:%v err:%v", ok, err)
	}
	if h.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", h.PID, os.Getpid())
	}
	_ = l.Release()

	// A leftover file nobody holds is stale.
	if err := os.WriteFile(filepath.Join(tmpDir, "LOCK"), []byte("pid=1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := Read(tmpDir); ok {
		t.Error("Read() should report a stale lock file as not held")
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
