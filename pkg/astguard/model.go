// Package astguard conservatively validates touched Python source files for
// structural well-formedness after a patch is applied, per spec §4.9. It is
// deliberately narrower than a full grammar parser — see DESIGN.md.
package astguard

// Issue is a single validation failure against one touched file.
type Issue struct {
	File    string
	Phase   string
	Message string
}

// Result is the outcome of validating a set of touched files.
type Result struct {
	Passed       bool
	CheckedFiles []string
	Issues       []Issue
}
