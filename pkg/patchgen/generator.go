package patchgen

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/selfheal/pipeline/pkg/intelligence"
)

// Generator applies deterministic edits from an accepted FixPlan against a
// local checkout and renders the result as a unified diff.
type Generator struct{}

// New returns a Generator. It holds no state; deterministic edits depend
// only on the checkout contents and the plan.
func New() *Generator { return &Generator{} }

// Generate applies every operation in plan.Operations against files under
// root, grouping edits by file (a file may have more than one operation),
// and returns the unified diff plus per-file stats. Output is byte-stable:
// identical root contents and plan produce identical diff text, because
// every edit function is a pure string transform and operations are
// applied in the plan's already-normalized (file, type) order.
func (g *Generator) Generate(root string, plan intelligence.FixPlan) (Result, error) {
	byFile := map[string][]intelligence.FixOperation{}
	var fileOrder []string
	seen := map[string]bool{}
	for _, op := range plan.Operations {
		if !seen[op.File] {
			seen[op.File] = true
			fileOrder = append(fileOrder, op.File)
		}
		byFile[op.File] = append(byFile[op.File], op)
	}
	sort.Strings(fileOrder)

	var diffs []string
	var changedFiles []string

	for _, file := range fileOrder {
		ops := byFile[file]
		absPath := filepath.Join(root, filepath.FromSlash(file))
		original, err := os.ReadFile(absPath)
		if err != nil && !os.IsNotExist(err) {
			return Result{}, &OperationError{File: file, Type: "read", Err: err}
		}
		before := string(original)
		after := before

		for _, op := range ops {
			updated, err := applyOperation(after, file, op)
			if err != nil {
				return Result{}, &OperationError{File: file, Type: string(op.Type), Err: err}
			}
			after = updated
		}

		if after == before {
			continue
		}

		diff, err := unifiedDiffFor(file, before, after)
		if err != nil {
			return Result{}, &OperationError{File: file, Type: "diff", Err: err}
		}
		diffs = append(diffs, diff)
		changedFiles = append(changedFiles, file)
	}

	diffText := strings.Join(diffs, "")
	return Result{
		DiffText: diffText,
		Stats: Stats{
			TotalFiles:   len(changedFiles),
			FilesChanged: changedFiles,
		},
	}, nil
}

func applyOperation(content, file string, op intelligence.FixOperation) (string, error) {
	switch op.Type {
	case intelligence.OpAddDependency, intelligence.OpPinDependency:
		dep, err := extractDependencySpec(op.Details)
		if err != nil {
			return "", err
		}
		return applyDependencyEdit(content, file, dep)
	case intelligence.OpRemoveUnused:
		name, _ := op.Details["name"].(string)
		if name == "" {
			return "", fmt.Errorf("remove_unused operation missing required \"name\"")
		}
		return removeUnusedImport(content, name)
	case intelligence.OpUpdateConfig, intelligence.OpModifyCode:
		return "", fmt.Errorf("operation type %q has no deterministic editor; use the LLM diff fallback", op.Type)
	default:
		return "", fmt.Errorf("unsupported operation type %q", op.Type)
	}
}

func applyDependencyEdit(content, file string, dep dependencySpec) (string, error) {
	base := filepath.Base(file)
	switch {
	case base == "pyproject.toml":
		return upsertPyproject(content, dep), nil
	case base == "requirements.txt" || strings.HasPrefix(base, "requirements"):
		return upsertRequirements(content, dep), nil
	case base == "package.json":
		return upsertPackageJSON(content, dep)
	case base == "go.mod":
		return upsertGoMod(content, dep), nil
	case base == "pom.xml":
		return upsertPom(content, dep)
	default:
		return "", fmt.Errorf("no deterministic dependency editor for %q", file)
	}
}

func unifiedDiffFor(file, before, after string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + file,
		ToFile:   "b/" + file,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	header := fmt.Sprintf("diff --git a/%s b/%s\n", file, file)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return header + text, nil
}
