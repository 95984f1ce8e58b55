package hostagent

import (
	"context"
	"testing"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

func TestExecutorRunShellRejectsUnlistedCommand(t *testing.T) {
	e := NewExecutor([]string{"echo"}, "")
	result := e.Run(context.Background(), coordinator.Payload{
		Kind:    coordinator.PayloadShell,
		Command: "rm",
		Args:    []string{"-rf", "/"},
	})
	if result.Success {
		t.Fatalf("expected disallowed command to fail")
	}
	if result.Error == "" {
		t.Fatalf("expected an error message explaining the rejection")
	}
}

func TestExecutorRunShellAllowedCommand(t *testing.T) {
	e := NewExecutor([]string{"echo"}, "")
	result := e.Run(context.Background(), coordinator.Payload{
		Kind:    coordinator.PayloadShell,
		Command: "echo",
		Args:    []string{"ok"},
	})
	if !result.Success {
		t.Fatalf("expected allowed command to succeed, error: %s", result.Error)
	}
	if result.Stdout != "ok\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "ok\n")
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestExecutorRunShellNonZeroExit(t *testing.T) {
	e := NewExecutor([]string{"false"}, "")
	result := e.Run(context.Background(), coordinator.Payload{
		Kind:    coordinator.PayloadShell,
		Command: "false",
	})
	if result.Success {
		t.Fatalf("expected false(1) to fail")
	}
	if result.ExitCode != 1 {
		t.Fatalf("ExitCode = %d, want 1", result.ExitCode)
	}
}

func TestExecutorRunTimesOut(t *testing.T) {
	e := NewExecutor([]string{"sleep"}, "")
	result := e.Run(context.Background(), coordinator.Payload{
		Kind:      coordinator.PayloadShell,
		Command:   "sleep",
		Args:      []string{"5"},
		TimeoutMs: 10,
	})
	if result.Success {
		t.Fatalf("expected timeout to fail the job")
	}
	if result.ExitCode != -1 {
		t.Fatalf("ExitCode = %d, want -1 on timeout", result.ExitCode)
	}
}

func TestExecutorUnknownPayloadKind(t *testing.T) {
	e := NewExecutor(nil, "")
	result := e.Run(context.Background(), coordinator.Payload{Kind: "bogus"})
	if result.Success {
		t.Fatalf("expected unknown payload kind to fail")
	}
}

func TestCappedBufferTruncatesAtLimit(t *testing.T) {
	var c cappedBuffer
	big := make([]byte, maxCapturedOutputBytes+100)
	for i := range big {
		big[i] = 'x'
	}
	if _, err := c.Write(big); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if len(c.String()) != maxCapturedOutputBytes {
		t.Fatalf("String() length = %d, want %d", len(c.String()), maxCapturedOutputBytes)
	}
}
