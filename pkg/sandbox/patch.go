package sandbox

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
)

// applyDiff writes the unified diff into the container and applies it with
// git apply, the same tool a contributor would use locally. git apply is
// stricter than patch -p1 about hunk exactness, which is desirable here:
// a diff that doesn't apply cleanly against commit_sha should fail loudly
// rather than partially apply.
func (r *Runner) applyDiff(ctx context.Context, c testcontainers.Container, cfg Config, diff string) (CommandResult, error) {
	writeResult, err := r.writeFile(ctx, c, cfg, "/tmp/fix.patch", diff)
	if err != nil || writeResult.Failed() {
		return writeResult, err
	}
	return r.exec(ctx, c, cfg, "git apply --whitespace=nowarn /tmp/fix.patch")
}

// writeFile streams content into the container via a heredoc, avoiding a
// dependency on testcontainers' CopyToContainer path so every operation in
// this package goes through the same exec/timeout/logging plumbing.
func (r *Runner) writeFile(ctx context.Context, c testcontainers.Container, cfg Config, path, content string) (CommandResult, error) {
	const marker = "__SELFHEAL_EOF__"
	cmd := "cat <<'" + marker + "' > " + path + "\n" + content + "\n" + marker
	return r.exec(ctx, c, cfg, cmd)
}
