// Package shell provides the command executor adapter.
package shell

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs the node's command. The environment is merged with the
// following priority (low to high): process environment, env parameter,
// node-level environment. If a telemetry vertex is attached to the context,
// command output streams to it; otherwise it streams to the logger.
func (e *Executor) Execute(ctx context.Context, node *domain.Node, env []string) error {
	if len(node.Command) == 0 {
		return nil
	}

	name := node.Command[0]
	args := node.Command[1:]

	cmdEnv := mergeEnvironment(os.Environ(), env, node.Environment)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, pathFromEnv(cmdEnv)); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // user provided command
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}

	if node.WorkingDir.String() != "" {
		cmd.Dir = node.WorkingDir.String()
	}
	cmd.Env = cmdEnv

	stdout, stderr := e.outputSinks(ctx)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(
			zerr.With(zerr.Wrap(err, "command failed"), "command", name),
			"exit_code", exitCode)
	}

	return nil
}

func (e *Executor) outputSinks(ctx context.Context) (io.Writer, io.Writer) {
	if v := ports.VertexFromContext(ctx); v != nil {
		return v.Stdout(), v.Stderr()
	}
	return &logWriter{logger: e.logger, warn: false}, &logWriter{logger: e.logger, warn: true}
}

// mergeEnvironment layers KEY=VALUE lists; later sources win per key.
func mergeEnvironment(base, extra []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(extra)+len(overrides))
	order := make([]string, 0, len(base)+len(extra)+len(overrides))

	set := func(kv string) {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return
		}
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		merged[key] = value
	}

	for _, kv := range base {
		set(kv)
	}
	for _, kv := range extra {
		set(kv)
	}
	for key, value := range overrides {
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		merged[key] = value
	}

	result := make([]string, 0, len(order))
	for _, key := range order {
		result = append(result, key+"="+merged[key])
	}
	return result
}

func pathFromEnv(env []string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if after, ok := strings.CutPrefix(env[i], "PATH="); ok {
			return after
		}
	}
	return ""
}

// lookPath searches for an executable in the given PATH value rather than
// the process's own.
func lookPath(name, path string) (string, error) {
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

type logWriter struct {
	logger ports.Logger
	warn   bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for line := range strings.SplitSeq(strings.TrimSuffix(string(p), "\n"), "\n") {
		if w.warn {
			w.logger.Warn(line)
		} else {
			w.logger.Info(line)
		}
	}
	return len(p), nil
}
