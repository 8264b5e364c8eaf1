package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/selfheal/pipeline/pkg/pipelineerr"
)

// checkoutTimeout bounds the local shallow clone used for patch generation;
// the sandbox's own in-container clone has its own, separate timeout.
const checkoutTimeout = 60 * time.Second

// shallowCheckout clones repoURL at commitSHA into a fresh temp directory
// and returns its path; the caller must remove it. This is a plain local
// git invocation (not containerized) since patch generation only reads and
// rewrites text files against a trusted checkout of the run's own target
// repository — sandbox.Runner is what runs untrusted code, in its own
// isolated container.
func shallowCheckout(ctx context.Context, repoURL, commitSHA string) (string, error) {
	dir, err := os.MkdirTemp("", "selfheal-checkout-*")
	if err != nil {
		return "", pipelineerr.Wrap(err, pipelineerr.KindTransient, "orchestrator: create checkout dir")
	}

	ctx, cancel := context.WithTimeout(ctx, checkoutTimeout)
	defer cancel()

	if err := runGit(ctx, "", "init", "-q", dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := runGit(ctx, dir, "remote", "add", "origin", repoURL); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := runGit(ctx, dir, "fetch", "--depth", "1", "origin", commitSHA); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := runGit(ctx, dir, "checkout", "-q", "FETCH_HEAD"); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return pipelineerr.Wrap(ctx.Err(), pipelineerr.KindTransient, "orchestrator: git checkout timed out")
		}
		return pipelineerr.Wrapf(err, pipelineerr.KindTransient, "orchestrator: git %v failed: %s", args, out)
	}
	return nil
}

func removeCheckout(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(dir)
}
