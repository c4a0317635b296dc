package tool_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/folio/pkg/tool"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fixtures require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func baseEnv() []string {
	return []string{"PATH=" + os.Getenv("PATH")}
}

func newAdapter(t *testing.T, diagCap int) *tool.Adapter {
	t.Helper()
	return tool.New(t.TempDir(), diagCap, slog.Default())
}

func TestInvokeSuccess(t *testing.T) {
	script := writeScript(t, `cp "$1" "$2/out.txt"`)
	input := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(input, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	a := newAdapter(t, 0)
	spec := tool.CommandSpec{
		Name:    "copy",
		Program: script,
		Env:     baseEnv(),
		Args:    []string{"{input}", "{workdir}"},
		Outputs: []string{"out.txt"},
	}

	res, err := a.Invoke(context.Background(), spec, []string{input}, 5*time.Second)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("Invoke() outputs = %d, want 1", len(res.Outputs))
	}

	data, err := os.ReadFile(res.Outputs[0])
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("output = %q, want %q", data, "hello")
	}
	if filepath.Dir(res.Outputs[0]) != res.WorkDir {
		t.Errorf("output %s not inside workdir %s", res.Outputs[0], res.WorkDir)
	}
}

func TestInvokeIsolatesWorkDirs(t *testing.T) {
	script := writeScript(t, `echo x > page.png`)
	a := newAdapter(t, 0)
	spec := tool.CommandSpec{
		Name:    "render",
		Program: script,
		Env:     baseEnv(),
		Outputs: []string{"page.png"},
	}

	first, err := a.Invoke(context.Background(), spec, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}
	second, err := a.Invoke(context.Background(), spec, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("second Invoke() error = %v", err)
	}

	if first.WorkDir == second.WorkDir {
		t.Errorf("invocations shared workdir %s", first.WorkDir)
	}
}

func TestInvokeFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		outputs  []string
		timeout  time.Duration
		wantKind tool.FailureKind
		wantExit int
	}{
		{
			name:     "non-zero exit",
			body:     `echo "boom" >&2; exit 3`,
			timeout:  5 * time.Second,
			wantKind: tool.KindExternalToolError,
			wantExit: 3,
		},
		{
			name:     "timeout",
			body:     `sleep 10`,
			timeout:  200 * time.Millisecond,
			wantKind: tool.KindTimeout,
			wantExit: -1,
		},
		{
			name:     "missing output",
			body:     `exit 0`,
			outputs:  []string{"page.png"},
			timeout:  5 * time.Second,
			wantKind: tool.KindIncompleteOutput,
		},
		{
			name:     "empty output",
			body:     `: > page.png`,
			outputs:  []string{"page.png"},
			timeout:  5 * time.Second,
			wantKind: tool.KindIncompleteOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, 0)
			spec := tool.CommandSpec{
				Name:    "engine",
				Program: writeScript(t, tt.body),
				Env:     baseEnv(),
				Outputs: tt.outputs,
			}

			_, err := a.Invoke(context.Background(), spec, nil, tt.timeout)

			var f *tool.Failure
			if !errors.As(err, &f) {
				t.Fatalf("Invoke() error = %v, want *tool.Failure", err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("Failure.Kind = %s, want %s", f.Kind, tt.wantKind)
			}
			if tt.wantKind != tool.KindIncompleteOutput && f.ExitCode != tt.wantExit {
				t.Errorf("Failure.ExitCode = %d, want %d", f.ExitCode, tt.wantExit)
			}
		})
	}
}

func TestInvokeTimeoutKillsProcessTree(t *testing.T) {
	script := writeScript(t, `sleep 30 & sleep 30; wait`)
	a := newAdapter(t, 0)
	spec := tool.CommandSpec{Name: "tree", Program: script, Env: baseEnv()}

	start := time.Now()
	_, err := a.Invoke(context.Background(), spec, nil, 200*time.Millisecond)
	elapsed := time.Since(start)

	var f *tool.Failure
	if !errors.As(err, &f) || f.Kind != tool.KindTimeout {
		t.Fatalf("Invoke() error = %v, want timeout failure", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Invoke() returned after %v, process tree not terminated", elapsed)
	}
}

func TestInvokeTruncatesDiagnostics(t *testing.T) {
	script := writeScript(t, `i=0; while [ $i -lt 500 ]; do echo "line $i of noisy output" >&2; i=$((i+1)); done; exit 1`)
	a := newAdapter(t, 64)
	spec := tool.CommandSpec{Name: "noisy", Program: script, Env: baseEnv()}

	_, err := a.Invoke(context.Background(), spec, nil, 5*time.Second)

	var f *tool.Failure
	if !errors.As(err, &f) {
		t.Fatalf("Invoke() error = %v, want *tool.Failure", err)
	}
	if len(f.Diagnostics) != 64 {
		t.Errorf("len(Diagnostics) = %d, want 64", len(f.Diagnostics))
	}
	if !f.Truncated {
		t.Error("Truncated = false, want true")
	}
	if !strings.HasPrefix(f.Diagnostics, "line 0") {
		t.Errorf("Diagnostics = %q, want leading output retained", f.Diagnostics)
	}
}

func TestInvokeValidation(t *testing.T) {
	a := newAdapter(t, 0)

	if _, err := a.Invoke(context.Background(), tool.CommandSpec{Name: "x"}, nil, time.Second); !errors.Is(err, tool.ErrProgramRequired) {
		t.Errorf("Invoke() without program error = %v, want ErrProgramRequired", err)
	}

	spec := tool.CommandSpec{Name: "x", Program: "true"}
	if _, err := a.Invoke(context.Background(), spec, nil, 0); !errors.Is(err, tool.ErrTimeoutRequired) {
		t.Errorf("Invoke() without timeout error = %v, want ErrTimeoutRequired", err)
	}
}

func TestInvokeExpandsInputs(t *testing.T) {
	script := writeScript(t, `for f in "$@"; do cat "$f"; done > joined.txt`)
	dir := t.TempDir()
	var inputs []string
	for _, part := range []string{"a", "b", "c"} {
		p := filepath.Join(dir, part)
		if err := os.WriteFile(p, []byte(part), 0o600); err != nil {
			t.Fatalf("write input: %v", err)
		}
		inputs = append(inputs, p)
	}

	a := newAdapter(t, 0)
	spec := tool.CommandSpec{
		Name:    "join",
		Program: script,
		Env:     baseEnv(),
		Args:    []string{"{inputs}"},
		Outputs: []string{"joined.txt"},
	}

	res, err := a.Invoke(context.Background(), spec, inputs, 5*time.Second)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	data, _ := os.ReadFile(res.Outputs[0])
	if string(data) != "abc" {
		t.Errorf("joined = %q, want %q", data, "abc")
	}
}
