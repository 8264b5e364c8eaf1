package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeRunKey derives the (repo, failure signature) key spec §4.10 rule 6
// uses for loop/cooldown detection: repo + branch + CI stage name + failure
// type, available directly off the ingested event with no log parsing
// required, so the cooldown guard can be consulted before any stage work
// runs. Two events with an identical signature collide on the same
// run_key regardless of commit_sha, so a commit-for-commit retry of the
// same recurring flake still hits the cooldown.
func ComputeRunKey(repo, branch, stage, failureType string) string {
	h := sha256.New()
	for _, part := range []string{repo, branch, stage, failureType} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return repo + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}
