// Package workspace resolves the durable base directory used to store the
// loop record.
package workspace

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/loopgate/loopgate/internal/log"
)

// maxSuperprojectHops bounds the ascent through nested repositories so a
// pathological setup cannot loop forever.
const maxSuperprojectHops = 16

// CommandRunner is the function type used to execute commands.
// It can be replaced in tests to mock command execution.
type CommandRunner func(ctx context.Context, dir string, name string, args ...string) (string, string, error)

// defaultCommandRunner executes a command using exec.CommandContext.
func defaultCommandRunner(ctx context.Context, dir string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Resolver finds the outermost version-control root for a starting directory.
type Resolver struct {
	commandRunner CommandRunner
}

// NewResolver creates a Resolver using the real git binary.
func NewResolver() *Resolver {
	return &Resolver{commandRunner: defaultCommandRunner}
}

// SetCommandRunner allows setting a custom command runner (for testing).
func (r *Resolver) SetCommandRunner(runner CommandRunner) {
	r.commandRunner = runner
}

// Resolve returns the most durable base directory for state, starting from
// startDir. It walks to the repository toplevel and keeps ascending while the
// toplevel is itself nested inside a superproject, so state lands at the
// outermost repository root. If no version-control root exists the starting
// directory is returned as a weaker fallback, with durable set to false.
// Lookup failures are treated as "no root found" and never propagated.
func (r *Resolver) Resolve(ctx context.Context, startDir string) (dir string, durable bool) {
	top := r.gitQuery(ctx, startDir, "--show-toplevel")
	if top == "" {
		log.Debug("no version-control root found, falling back to start dir", "dir", startDir)
		return startDir, false
	}

	for i := 0; i < maxSuperprojectHops; i++ {
		super := r.gitQuery(ctx, top, "--show-superproject-working-tree")
		if super == "" || super == top {
			break
		}
		log.Debug("ascending to superproject", "from", top, "to", super)
		top = super
	}

	return top, true
}

// gitQuery runs `git rev-parse <flag>` in dir and returns the trimmed output,
// or "" on any failure.
func (r *Resolver) gitQuery(ctx context.Context, dir, flag string) string {
	stdout, stderr, err := r.commandRunner(ctx, dir, "git", "rev-parse", flag)
	if err != nil {
		log.Debug("git rev-parse failed", "flag", flag, "dir", dir,
			"stderr", strings.TrimSpace(stderr), "error", err)
		return ""
	}
	return strings.TrimSpace(stdout)
}
