// Package gitcli runs the git binary as a subprocess and exposes the text
// output of the few commands the coupling pipeline consumes.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/didiforget/pkg/linestream"
)

// DefaultBinary is the git executable looked up in PATH.
const DefaultBinary = "git"

// baseArgs precede every command. Unquoted paths keep non-ASCII names
// byte-identical to the names on disk.
var baseArgs = []string{"-c", "core.quotepath=off"}

// Git runs git commands inside a single working directory.
type Git struct {
	logger *slog.Logger
	dir    string
	binary string
	env    []string
}

// Option configures a Git.
type Option func(*Git)

// WithBinary overrides the git executable.
func WithBinary(binary string) Option {
	return func(g *Git) {
		g.binary = binary
	}
}

// WithLogger sets the logger used for per-command debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Git) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Git rooted at dir. An empty dir means the current directory.
func New(dir string, opts ...Option) *Git {
	g := &Git{
		dir:    dir,
		binary: DefaultBinary,
		logger: slog.New(slog.DiscardHandler),
		env:    []string{"GIT_TERMINAL_PROMPT=0"},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *Git) command(ctx context.Context, args []string) *exec.Cmd {
	full := make([]string, 0, len(baseArgs)+len(args))
	full = append(full, baseArgs...)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, g.binary, full...)
	cmd.Dir = g.dir
	cmd.Env = append(os.Environ(), g.env...)

	return cmd
}

// Output runs git with args and returns its stdout.
func (g *Git) Output(ctx context.Context, args ...string) ([]byte, error) {
	start := time.Now()

	cmd := g.command(ctx, args)

	var (
		stdout bytes.Buffer
		stderr stderrTail
	)

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	g.logger.DebugContext(ctx, "git command finished",
		"args", args, "duration", time.Since(start), "error", err)

	if err != nil {
		return nil, newInvocationError(args, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// Lines runs git with args and returns its non-empty output lines.
func (g *Git) Lines(ctx context.Context, args ...string) ([]string, error) {
	out, err := g.Output(ctx, args...)
	if err != nil {
		return nil, err
	}

	var lines []string

	for line, readErr := range linestream.Lines(bytes.NewReader(out)) {
		if readErr != nil {
			return nil, readErr
		}

		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, nil
}

// Stream runs git with args and yields its stdout line by line while the
// process is still running. A failure to start, a read error or a non-zero
// exit status is yielded as a final *InvocationError. Stopping the
// iteration early kills the process.
func (g *Git) Stream(ctx context.Context, args ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := time.Now()
		cmd := g.command(ctx, args)

		var stderr stderrTail

		cmd.Stderr = &stderr

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield("", newInvocationError(args, err, ""))

			return
		}

		err = cmd.Start()
		if err != nil {
			yield("", newInvocationError(args, err, stderr.String()))

			return
		}

		lines := 0

		for line, readErr := range linestream.Lines(stdout) {
			if readErr != nil {
				cancel()

				_ = cmd.Wait()

				yield("", newInvocationError(args, readErr, stderr.String()))

				return
			}

			lines++

			if !yield(line, nil) {
				cancel()

				_ = cmd.Wait()

				g.logger.DebugContext(ctx, "git stream stopped by consumer", "args", args, "lines", lines)

				return
			}
		}

		waitErr := cmd.Wait()

		g.logger.DebugContext(ctx, "git stream finished",
			"args", args, "lines", lines, "duration", time.Since(start), "error", waitErr)

		if waitErr != nil {
			yield("", newInvocationError(args, waitErr, stderr.String()))
		}
	}
}

// DiffNameOnly lists the paths reported by `git diff --name-only <revspec>`,
// with quoted names decoded.
func (g *Git) DiffNameOnly(ctx context.Context, revspec string) ([]string, error) {
	paths, err := g.Lines(ctx, "diff", "--name-only", revspec, "--")
	if err != nil {
		return nil, err
	}

	for i, p := range paths {
		paths[i] = UnquotePath(p)
	}

	return paths, nil
}

// RevParse resolves ref to its canonical revision id.
func (g *Git) RevParse(ctx context.Context, ref string) (string, error) {
	args := []string{"rev-parse", "--verify", "--end-of-options", ref}

	out, err := g.Output(ctx, args...)
	if err != nil {
		return "", err
	}

	rev := strings.TrimSpace(string(out))
	if rev == "" {
		return "", newInvocationError(args, ErrEmptyRevision, "")
	}

	return rev, nil
}

// TopLevel returns the absolute path of the working tree root. Paths in
// diff and log output are relative to it.
func (g *Git) TopLevel(ctx context.Context) (string, error) {
	out, err := g.Output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

// LogNameOnly streams the name-only log of every branch plus ref, without
// merges and without rename detection. Each commit is an empty line
// followed by its paths. Paths are left as git prints them, one per line;
// decode them with UnquotePaths.
func (g *Git) LogNameOnly(ctx context.Context, ref string) iter.Seq2[string, error] {
	return g.Stream(ctx, "log", "--all", "--name-only", "--pretty=format:",
		"--no-renames", "--no-merges", ref, "--")
}

func newInvocationError(args []string, err error, stderr string) *InvocationError {
	exitCode := exitCodeNotStarted

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	return &InvocationError{
		Args:     append([]string(nil), args...),
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}
