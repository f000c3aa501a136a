package pattern

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentforge/agentforge/internal/util"
)

// PreflightReport is the outcome of a build/test gate run.
type PreflightReport struct {
	Passed bool
	Output string
}

// Preflight gates hierarchical runs: after the workers finish, the run
// only advances to QA once the workspace builds.
type Preflight interface {
	Check(ctx context.Context) (*PreflightReport, error)
}

// NoPreflight always passes. Used when a run has no workspace to build.
type NoPreflight struct{}

// Check reports success without doing anything.
func (NoPreflight) Check(context.Context) (*PreflightReport, error) {
	return &PreflightReport{Passed: true, Output: "preflight disabled"}, nil
}

// ExecPreflight builds and tests the workspace directory with the
// toolchain matching its manifest file.
type ExecPreflight struct {
	// Dir is the workspace root.
	Dir string

	// OutputLimit truncates captured command output. Zero means 4000.
	OutputLimit int
}

type preflightStep struct {
	manifest string
	commands [][]string
}

var preflightSteps = []preflightStep{
	{"go.mod", [][]string{{"go", "build", "./..."}, {"go", "test", "./..."}}},
	{"package.json", [][]string{{"npm", "test", "--silent"}}},
	{"Cargo.toml", [][]string{{"cargo", "build", "--quiet"}}},
	{"pyproject.toml", [][]string{{"python", "-m", "pytest", "-q"}}},
}

// Check detects the workspace's manifest and runs its build and test
// commands. A workspace without a recognized manifest passes vacuously.
// Command failure is a failed report, not an error; errors are reserved
// for context cancellation.
func (p *ExecPreflight) Check(ctx context.Context) (*PreflightReport, error) {
	limit := p.OutputLimit
	if limit <= 0 {
		limit = 4000
	}
	for _, step := range preflightSteps {
		if _, err := os.Stat(filepath.Join(p.Dir, step.manifest)); err != nil {
			continue
		}
		var combined strings.Builder
		for _, cmdline := range step.commands {
			cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
			cmd.Dir = p.Dir
			out, err := cmd.CombinedOutput()
			combined.WriteString("$ " + strings.Join(cmdline, " ") + "\n")
			combined.Write(out)
			combined.WriteString("\n")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err != nil {
				return &PreflightReport{
					Passed: false,
					Output: util.Truncate(combined.String(), limit),
				}, nil
			}
		}
		return &PreflightReport{Passed: true, Output: util.Truncate(combined.String(), limit)}, nil
	}
	return &PreflightReport{Passed: true, Output: "no recognized project manifest"}, nil
}
