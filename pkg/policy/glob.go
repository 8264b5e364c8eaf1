package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// regoModule evaluates path-glob membership against a fixed set of glob
// lists. It is compiled once per process (globEvaluator) and then queried
// per-decision with a fresh input document; this keeps the numeric scoring
// in pkg/policy native Go while delegating the one part of the original
// Python (fnmatch-based glob sets) that genuinely reads better as a set
// comprehension over data to Rego's glob.match builtin.
const regoModule = `
package selfheal.policy

default allowed_paths = []
default forbidden_paths = []
default risky_hits = []

allowed_paths = [path |
	some path
	path := input.files[_]
	some i
	glob.match(input.allowed[i], ["/"], path)
]

forbidden_paths = [path |
	some path
	path := input.files[_]
	some i
	glob.match(input.forbidden[i], ["/"], path)
]

risky_hits = [hit |
	some i
	rule := input.risky_paths[i]
	some path
	path := input.files[_]
	glob.match(rule.glob, ["/"], path)
	hit := {"rule_index": i, "path": path}
]
`

// globEvaluator is a prepared Rego query reused across Evaluate calls. Rego
// compilation is the expensive part of using OPA embedded; preparing once
// and evaluating per-input is the documented pattern for in-process use.
type globEvaluator struct {
	prepared rego.PreparedEvalQuery
}

var sharedGlobEvaluator *globEvaluator

func getGlobEvaluator() (*globEvaluator, error) {
	if sharedGlobEvaluator != nil {
		return sharedGlobEvaluator, nil
	}
	ctx := context.Background()
	r := rego.New(
		rego.Query("result := {\"allowed\": data.selfheal.policy.allowed_paths, \"forbidden\": data.selfheal.policy.forbidden_paths, \"risky\": data.selfheal.policy.risky_hits}"),
		rego.Module("selfheal_policy.rego", regoModule),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare rego query: %w", err)
	}
	sharedGlobEvaluator = &globEvaluator{prepared: prepared}
	return sharedGlobEvaluator, nil
}

type globResult struct {
	Allowed   []string          `json:"allowed"`
	Forbidden []string          `json:"forbidden"`
	Risky     []riskyGlobHit    `json:"risky"`
}

type riskyGlobHit struct {
	RuleIndex int    `json:"rule_index"`
	Path      string `json:"path"`
}

// evaluateGlobs runs the embedded Rego module against the given file list
// and path policy, returning which files matched allowed/forbidden globs
// and which risky-path rules fired.
func evaluateGlobs(ctx context.Context, files []string, allowed, forbidden []string, risky []RiskyPathRule) (globResult, error) {
	evaluator, err := getGlobEvaluator()
	if err != nil {
		return globResult{}, err
	}

	riskyInput := make([]map[string]any, len(risky))
	for i, rule := range risky {
		riskyInput[i] = map[string]any{"glob": rule.Glob, "weight": rule.Weight, "message": rule.Message}
	}

	input := map[string]any{
		"files":       files,
		"allowed":     allowed,
		"forbidden":   forbidden,
		"risky_paths": riskyInput,
	}

	resultSet, err := evaluator.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return globResult{}, fmt.Errorf("policy: evaluate rego query: %w", err)
	}
	if len(resultSet) == 0 || len(resultSet[0].Bindings) == 0 {
		return globResult{}, nil
	}

	raw, ok := resultSet[0].Bindings["result"].(map[string]any)
	if !ok {
		return globResult{}, fmt.Errorf("policy: unexpected rego result shape")
	}

	out := globResult{}
	if allowedRaw, ok := raw["allowed"].([]any); ok {
		for _, v := range allowedRaw {
			if s, ok := v.(string); ok {
				out.Allowed = append(out.Allowed, s)
			}
		}
	}
	if forbiddenRaw, ok := raw["forbidden"].([]any); ok {
		for _, v := range forbiddenRaw {
			if s, ok := v.(string); ok {
				out.Forbidden = append(out.Forbidden, s)
			}
		}
	}
	if riskyRaw, ok := raw["risky"].([]any); ok {
		for _, v := range riskyRaw {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			idx, _ := m["rule_index"].(int)
			if f, ok := m["rule_index"].(float64); ok {
				idx = int(f)
			}
			path, _ := m["path"].(string)
			out.Risky = append(out.Risky, riskyGlobHit{RuleIndex: idx, Path: path})
		}
	}
	return out, nil
}
