package patchgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/selfheal/pipeline/pkg/diffutil"
	"github.com/selfheal/pipeline/pkg/intelligence"
)

// DiffProvider generates a unified diff from a prompt. It is a narrower
// view of intelligence.LLMProvider so patchgen does not depend on the
// rest of the intelligence package's JSON-stage machinery — update_config
// / modify_code fallback output is a unified diff, not a JSON document.
type DiffProvider interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

const llmDiffMaxTokens = 1500

// GenerateWithLLMFallback runs Generate for every deterministically
// covered operation, then for any remaining update_config / modify_code
// operations asks provider for a unified diff and validates it only
// touches plan.Files before appending it to the result.
func (g *Generator) GenerateWithLLMFallback(ctx context.Context, root string, plan intelligence.FixPlan, provider DiffProvider) (Result, error) {
	deterministic := plan
	deterministic.Operations = filterOperations(plan.Operations, func(op intelligence.FixOperation) bool {
		return op.Type != intelligence.OpUpdateConfig && op.Type != intelligence.OpModifyCode
	})

	result, err := g.Generate(root, deterministic)
	if err != nil {
		return Result{}, err
	}

	fallbackOps := filterOperations(plan.Operations, func(op intelligence.FixOperation) bool {
		return op.Type == intelligence.OpUpdateConfig || op.Type == intelligence.OpModifyCode
	})
	if len(fallbackOps) == 0 {
		return result, nil
	}

	prompt := llmDiffPrompt(plan, fallbackOps)
	raw, err := provider.Generate(ctx, prompt, llmDiffMaxTokens, 0.0)
	if err != nil {
		return Result{}, fmt.Errorf("patchgen: llm diff fallback failed: %w", err)
	}

	llmDiff := extractDiffText(raw)
	if err := validateDiffScope(llmDiff, plan.Files); err != nil {
		return Result{}, fmt.Errorf("patchgen: llm diff rejected: %w", err)
	}

	combined := strings.Join(filterEmpty([]string{result.DiffText, llmDiff}), "")
	parsed := diffutil.Parse(combined)
	files := make([]string, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		files = append(files, f.Path)
	}

	return Result{
		DiffText: combined,
		Stats:    Stats{TotalFiles: len(files), FilesChanged: files},
	}, nil
}

// validateDiffScope rejects a diff that touches any file outside
// allowedFiles, per spec §4.8.
func validateDiffScope(diffText string, allowedFiles []string) error {
	if strings.TrimSpace(diffText) == "" {
		return fmt.Errorf("empty diff")
	}
	allowed := make(map[string]bool, len(allowedFiles))
	for _, f := range allowedFiles {
		allowed[diffutil.NormalizePath(f)] = true
	}
	parsed := diffutil.Parse(diffText)
	for _, f := range parsed.Files {
		if !allowed[f.Path] {
			return fmt.Errorf("diff touches file %q outside plan.files", f.Path)
		}
	}
	return nil
}

func llmDiffPrompt(plan intelligence.FixPlan, ops []intelligence.FixOperation) string {
	var b strings.Builder
	b.WriteString("Produce a unified diff (git-style, with \"diff --git\" and \"+++\"/\"---\" headers) that applies ")
	b.WriteString("the following fix operations. The diff MUST NOT touch any file outside this list: ")
	b.WriteString(strings.Join(plan.Files, ", "))
	b.WriteString(".\nRoot cause: ")
	b.WriteString(plan.RootCause)
	b.WriteString("\nOperations:\n")
	for _, op := range ops {
		b.WriteString(fmt.Sprintf("- %s on %s: %s\n", op.Type, op.File, op.Rationale))
	}
	return b.String()
}

// extractDiffText strips a surrounding markdown code fence if present.
func extractDiffText(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 0 {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
			lines = lines[:len(lines)-1]
		}
		text = strings.Join(lines, "\n")
	}
	return text
}

func filterOperations(ops []intelligence.FixOperation, keep func(intelligence.FixOperation) bool) []intelligence.FixOperation {
	var out []intelligence.FixOperation
	for _, op := range ops {
		if keep(op) {
			out = append(out, op)
		}
	}
	return out
}

func filterEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
