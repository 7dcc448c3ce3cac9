package deps

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/errors"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct{}

// Run implements Runner. A missing binary, a non-zero exit and an expired
// deadline map to EXTERNAL_TOOL, EXTERNAL_TOOL and TIMEOUT respectively.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalTool, err, "%s not found in PATH", name)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrCodeTimeout, ctx.Err(), "%s timed out", name)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, errors.Wrap(errors.ErrCodeExternalTool, err, "%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}
