package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Runner materializes one ephemeral container per validation request and
// tears it down unconditionally when the request completes, matching spec
// §5's "Sandbox containers are force-killed on timeout" and the general
// suspension-point/cancellation-propagation rule.
type Runner struct {
	FailOnVulnSeverity string
}

func NewRunner(failOnVulnSeverity string) *Runner {
	if failOnVulnSeverity == "" {
		failOnVulnSeverity = "HIGH"
	}
	return &Runner{FailOnVulnSeverity: failOnVulnSeverity}
}

// Validate runs the full sandbox lifecycle: materialize, clone, patch,
// install/validation steps, scans. It never returns an error for a failed
// validation — failures are reported through Result.Status — but does
// return an error if the sandbox infrastructure itself (container
// creation, exec plumbing) could not be set up at all.
func (r *Runner) Validate(ctx context.Context, req Request) (Result, error) {
	cfg := req.Config
	if cfg.DockerImage == "" {
		cfg = DefaultConfig()
	}
	started := time.Now()
	result := Result{
		FixID:        req.FixID,
		EventID:      req.EventID,
		ValidationID: uuid.NewString(),
		Status:       StatusPending,
		DockerImage:  cfg.DockerImage,
		CreatedAt:    started,
	}

	stageCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	sandboxContainer, err := r.startContainer(stageCtx, cfg)
	if err != nil {
		result.Status = StatusError
		result.ErrorMessage = fmt.Sprintf("container start failed: %v", err)
		result.CompletedAt = time.Now()
		result.ExecutionTime = result.CompletedAt.Sub(started)
		return result, nil
	}
	defer func() { _ = sandboxContainer.Terminate(context.Background()) }()

	var logs strings.Builder

	result.Status = StatusCloning
	cloneResult, err := r.exec(stageCtx, sandboxContainer, cfg,
		fmt.Sprintf("git clone %s . && git checkout %s", req.RepoURL, req.CommitSHA))
	logs.WriteString(renderCommandLog(cloneResult))
	if err != nil || cloneResult.Failed() {
		return r.finish(result, &logs, started, statusErrorOrTimeout(err, cloneResult), "clone failed")
	}
	result.StepsCompleted = append(result.StepsCompleted, "clone")

	if req.Diff != "" {
		result.Status = StatusPatching
		patchResult, err := r.applyDiff(stageCtx, sandboxContainer, cfg, req.Diff)
		logs.WriteString(renderCommandLog(patchResult))
		if err != nil || patchResult.Failed() {
			return r.finish(result, &logs, started, statusErrorOrTimeout(err, patchResult), "patch failed to apply")
		}
		result.StepsCompleted = append(result.StepsCompleted, "patch")
	}

	steps := req.ValidationSteps
	result.Status = StatusRunning
	framework := FrameworkUnknown
	for _, step := range steps {
		timeout := cfg.TimeoutSeconds
		if step.TimeoutSeconds > 0 {
			timeout = step.TimeoutSeconds
		}
		stepCtx, stepCancel := context.WithTimeout(stageCtx, time.Duration(timeout)*time.Second)
		cmdResult, err := r.execIn(stepCtx, sandboxContainer, cfg, step.Workdir, step.Command)
		stepCancel()
		logs.WriteString(renderCommandLog(cmdResult))
		if err != nil || cmdResult.Failed() {
			return r.finish(result, &logs, started, statusErrorOrTimeout(err, cmdResult),
				fmt.Sprintf("validation step %q failed", step.Name))
		}
		result.StepsCompleted = append(result.StepsCompleted, step.Name)
		framework = detectFramework(step.Command, framework)
		passed, failed, skipped, testResults := parseTestOutput(framework, cmdResult.Stdout)
		result.TestsPassed += passed
		result.TestsFailed += failed
		result.TestsSkipped += skipped
		result.TestResults = append(result.TestResults, testResults...)
	}
	result.TestsTotal = result.TestsPassed + result.TestsFailed + result.TestsSkipped
	result.FrameworkFound = framework

	scans, err := r.runScans(stageCtx, sandboxContainer, cfg, req.FixID)
	if err != nil {
		return r.finish(result, &logs, started, StatusError, fmt.Sprintf("scan stage error: %v", err))
	}
	result.Scans = scans

	finalStatus := StatusPassed
	if result.TestsFailed > 0 {
		finalStatus = StatusFailed
	}
	if scans.Gitleaks.Status == ScanFail || scans.Trivy.Status == ScanFail {
		finalStatus = StatusFailed
	}
	return r.finish(result, &logs, started, finalStatus, "")
}

func (r *Runner) finish(result Result, logs *strings.Builder, started time.Time, status Status, errMsg string) (Result, error) {
	result.Status = status
	if errMsg != "" {
		result.ErrorMessage = errMsg
	}
	result.CompletedAt = time.Now()
	result.ExecutionTime = result.CompletedAt.Sub(started)
	result.Logs = truncateLog(logs.String(), 65536)
	return result, nil
}

// statusErrorOrTimeout classifies a failed step as StatusTimeout when the
// context deadline was exceeded, otherwise StatusError.
func statusErrorOrTimeout(err error, cmd CommandResult) Status {
	if cmd.TimedOut || err == context.DeadlineExceeded {
		return StatusTimeout
	}
	return StatusError
}

func (r *Runner) startContainer(ctx context.Context, cfg Config) (testcontainers.Container, error) {
	networkMode := container.NetworkMode("none")
	if cfg.NetworkEnabled {
		networkMode = container.NetworkMode("bridge")
	}

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cfg.DockerImage,
			Cmd:        []string{"sleep", "infinity"},
			WaitingFor: wait.ForExec([]string{"true"}).WithStartupTimeout(30 * time.Second),
			Env:        cfg.EnvVars,
			HostConfigModifier: func(hc *container.HostConfig) {
				hc.NetworkMode = networkMode
				hc.Resources.Memory = cfg.MemoryLimitBytes
				hc.Resources.NanoCPUs = int64(cfg.CPULimit * 1e9)
			},
		},
		Started: true,
	}
	return testcontainers.GenericContainer(ctx, req)
}

func (r *Runner) exec(ctx context.Context, c testcontainers.Container, cfg Config, command string) (CommandResult, error) {
	return r.execIn(ctx, c, cfg, "", command)
}

func (r *Runner) execIn(ctx context.Context, c testcontainers.Container, cfg Config, workdir, command string) (CommandResult, error) {
	dir := cfg.WorkingDir
	if workdir != "" {
		dir = workdir
	}
	full := fmt.Sprintf("cd %s && %s", shellQuote(dir), command)

	started := time.Now()
	exitCode, reader, err := c.Exec(ctx, []string{"sh", "-c", full})
	duration := time.Since(started).Seconds()

	if ctx.Err() == context.DeadlineExceeded {
		return CommandResult{Command: command, TimedOut: true, DurationSeconds: duration}, ctx.Err()
	}
	if err != nil {
		return CommandResult{Command: command, ExitCode: -1, Stderr: err.Error(), DurationSeconds: duration}, err
	}

	var buf bytes.Buffer
	if reader != nil {
		_, _ = io.Copy(&buf, reader)
	}
	return CommandResult{
		Command:         command,
		ExitCode:        exitCode,
		Stdout:          buf.String(),
		DurationSeconds: duration,
	}, nil
}

func shellQuote(s string) string {
	if s == "" {
		return "/workspace"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func renderCommandLog(cmd CommandResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\n", cmd.Command)
	b.WriteString(cmd.Stdout)
	if cmd.Stderr != "" {
		b.WriteString(cmd.Stderr)
	}
	b.WriteString("\n")
	return b.String()
}

func truncateLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
