package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeOutputRecords(t *testing.T) {
	f := NewFakeOutput()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := f.Drive(now, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Drive(now.Add(time.Second), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmds := f.Recorded()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if !cmds[0].At.Equal(now) || cmds[0].Power != 0.5 {
		t.Errorf("command 0: unexpected %+v", cmds[0])
	}
	if cmds[1].Power != 0 {
		t.Errorf("command 1: expected power 0, got %v", cmds[1].Power)
	}
}

func TestFakeOutputLevelAt(t *testing.T) {
	f := NewFakeOutput()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Issued out of time order, as a schedule would be.
	f.Drive(now, 0.8)
	f.Drive(now.Add(600*time.Millisecond), 0)
	f.Drive(now.Add(time.Second), 0.4)

	if got := f.LevelAt(now.Add(-time.Millisecond)); got != 0 {
		t.Errorf("before first command: expected 0, got %v", got)
	}
	if got := f.LevelAt(now.Add(300 * time.Millisecond)); got != 0.8 {
		t.Errorf("mid window: expected 0.8, got %v", got)
	}
	if got := f.LevelAt(now.Add(600 * time.Millisecond)); got != 0 {
		t.Errorf("at window end: expected 0, got %v", got)
	}
	if got := f.LevelAt(now.Add(2 * time.Second)); got != 0.4 {
		t.Errorf("after last command: expected 0.4, got %v", got)
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput()
	f.DriveError = errors.New("simulated error")

	err := f.Drive(time.Now(), 1)
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("expected simulated error, got %v", err)
	}
	if len(f.Recorded()) != 0 {
		t.Error("failed drive should not be recorded")
	}
}

func TestFakeOutputCloseAndReset(t *testing.T) {
	f := NewFakeOutput()
	f.Drive(time.Now(), 1)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || len(f.Recorded()) != 0 {
		t.Error("expected clean state after Reset()")
	}
}
