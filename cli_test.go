package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var errTestSentinel = errors.New("sentinel test error")

func runRootCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	out := runRootCmd(t, "version")
	if !strings.Contains(out, Version) {
		t.Fatalf("expected version %q in output, got %q", Version, out)
	}
}

func TestStatusCommandPrintsResolvedConfig(t *testing.T) {
	out := runRootCmd(t, "status")
	if !strings.Contains(out, "TCP port:") {
		t.Fatalf("expected resolved TCP port in output, got %q", out)
	}
}

func TestExitCodeForConfigurationError(t *testing.T) {
	err := &ConfigurationError{Field: "tcp_port", Err: errTestSentinel}
	if got := exitCodeForError(err); got != exitConfigurationError {
		t.Fatalf("exit code = %d, want %d", got, exitConfigurationError)
	}
}

func TestExitCodeForBindError(t *testing.T) {
	err := &BindError{Addr: ":8087", Err: errTestSentinel}
	if got := exitCodeForError(err); got != exitBindError {
		t.Fatalf("exit code = %d, want %d", got, exitBindError)
	}
}

func TestExitCodeForTLSMaterialError(t *testing.T) {
	err := &TLSMaterialError{Field: "tls.cert_file", Err: errTestSentinel}
	if got := exitCodeForError(err); got != exitInternalError {
		t.Fatalf("exit code = %d, want %d", got, exitInternalError)
	}
}

func TestExitCodeForUnknownError(t *testing.T) {
	if got := exitCodeForError(errTestSentinel); got != exitInternalError {
		t.Fatalf("exit code = %d, want %d", got, exitInternalError)
	}
}
