// Package tool runs external rendering engines as isolated subprocesses.
// Every invocation gets its own working directory, a mandatory wall-clock
// timeout, bounded diagnostic capture, and verification of the output files
// the caller expects the engine to produce.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultDiagnosticsCap bounds captured stdout/stderr per invocation.
	DefaultDiagnosticsCap = 16 * 1024

	waitDelay = 2 * time.Second
)

var (
	// ErrProgramRequired indicates a CommandSpec without a program.
	ErrProgramRequired = errors.New("tool program required")
	// ErrTimeoutRequired indicates an invocation without a positive timeout.
	ErrTimeoutRequired = errors.New("tool timeout must be positive")
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// CommandSpec fully determines one engine invocation. Args and Outputs may
// reference {workdir}, {input} (first input path), and {inputs} (all input
// paths, expanded into separate arguments). Outputs are resolved relative to
// the invocation working directory.
type CommandSpec struct {
	Name    string
	Program string
	Args    []string
	Outputs []string
	Env     []string
}

// Result describes a successful invocation.
type Result struct {
	WorkDir     string
	Outputs     []string
	Diagnostics string
	Duration    time.Duration
}

// Invoker is the contract stages depend on for external engine calls.
type Invoker interface {
	Invoke(ctx context.Context, spec CommandSpec, inputs []string, timeout time.Duration) (*Result, error)
}

// Adapter invokes engines beneath Root, one fresh directory per call.
type Adapter struct {
	Root           string
	DiagnosticsCap int
	Logger         *slog.Logger
}

// New creates an Adapter rooted at root. A non-positive diagnosticsCap
// falls back to DefaultDiagnosticsCap.
func New(root string, diagnosticsCap int, logger *slog.Logger) *Adapter {
	if diagnosticsCap <= 0 {
		diagnosticsCap = DefaultDiagnosticsCap
	}
	return &Adapter{
		Root:           root,
		DiagnosticsCap: diagnosticsCap,
		Logger:         logger.With("system", "tool"),
	}
}

// Invoke runs spec against inputs. Failures of the engine itself are
// returned as *Failure; cancellation of ctx is returned as ctx.Err() wrapped.
func (a *Adapter) Invoke(
	ctx context.Context,
	spec CommandSpec,
	inputs []string,
	timeout time.Duration,
) (*Result, error) {
	if strings.TrimSpace(spec.Program) == "" {
		return nil, ErrProgramRequired
	}
	if timeout <= 0 {
		return nil, ErrTimeoutRequired
	}

	workDir, err := os.MkdirTemp(a.Root, invocationPattern(spec))
	if err != nil {
		return nil, fmt.Errorf("create invocation dir: %w", err)
	}

	args := expandArgs(spec.Args, workDir, inputs)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	diag := newCappedBuffer(a.DiagnosticsCap)

	cmd := exec.CommandContext(runCtx, spec.Program, args...)
	cmd.Dir = workDir
	cmd.Env = append(append([]string{}, spec.Env...), "HOME="+workDir, "TMPDIR="+workDir)
	cmd.Stdout = diag
	cmd.Stderr = diag
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, ctx.Err())
		}

		f := &Failure{
			Tool:        spec.Name,
			ExitCode:    exitCode(runErr),
			Diagnostics: diag.String(),
			Truncated:   diag.Truncated(),
			Err:         runErr,
		}

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			f.Kind = KindTimeout
		} else {
			f.Kind = KindExternalToolError
		}

		a.Logger.WarnContext(
			ctx, "tool invocation failed",
			"tool", spec.Name,
			"kind", f.Kind,
			"exit_code", f.ExitCode,
			"duration", elapsed,
		)
		return nil, f
	}

	outputs, err := verifyOutputs(workDir, spec.Outputs, inputs)
	if err != nil {
		return nil, &Failure{
			Kind:        KindIncompleteOutput,
			Tool:        spec.Name,
			Diagnostics: diag.String(),
			Truncated:   diag.Truncated(),
			Err:         err,
		}
	}

	a.Logger.DebugContext(
		ctx, "tool invocation complete",
		"tool", spec.Name,
		"outputs", len(outputs),
		"duration", elapsed,
	)

	return &Result{
		WorkDir:     workDir,
		Outputs:     outputs,
		Diagnostics: diag.String(),
		Duration:    elapsed,
	}, nil
}

func invocationPattern(spec CommandSpec) string {
	name := spec.Name
	if name == "" {
		name = filepath.Base(spec.Program)
	}
	name = unsafeName.ReplaceAllString(name, "_")
	return name + "-*"
}

func expandArgs(args []string, workDir string, inputs []string) []string {
	out := make([]string, 0, len(args)+len(inputs))
	for _, arg := range args {
		if arg == "{inputs}" {
			out = append(out, inputs...)
			continue
		}
		out = append(out, expand(arg, workDir, inputs))
	}
	return out
}

func expand(s, workDir string, inputs []string) string {
	first := ""
	if len(inputs) > 0 {
		first = inputs[0]
	}
	r := strings.NewReplacer(
		"{workdir}", workDir,
		"{input}", first,
	)
	return r.Replace(s)
}

func verifyOutputs(workDir string, expected []string, inputs []string) ([]string, error) {
	outputs := make([]string, 0, len(expected))
	var missing []string

	for _, name := range expected {
		p := expand(name, workDir, inputs)
		if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}

		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.Size() == 0 {
			missing = append(missing, filepath.Base(p))
			continue
		}
		outputs = append(outputs, p)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing or empty outputs: %s", strings.Join(missing, ", "))
	}
	return outputs, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
