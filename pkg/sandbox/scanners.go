package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

func extractVersion(stdout string) string {
	m := versionPattern.FindStringSubmatch(stdout)
	if m == nil {
		return ""
	}
	return m[1]
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sha256Path(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	return sha256Hex([]byte(normalized))
}

// runScans executes the gitleaks, trivy, and syft scans in sequence inside
// the already-running sandbox container (spec §4.11.3).
func (r *Runner) runScans(ctx context.Context, c testcontainers.Container, cfg Config, runID string) (*ScanSummary, error) {
	gitleaks := r.runGitleaks(ctx, c, cfg)
	trivy := r.runTrivy(ctx, c, cfg)
	sbom := r.runSyft(ctx, c, cfg, runID)
	return &ScanSummary{Gitleaks: gitleaks, Trivy: trivy, SBOM: sbom}, nil
}

func (r *Runner) runGitleaks(ctx context.Context, c testcontainers.Container, cfg Config) GitleaksScanResult {
	started := time.Now()
	versionResult, _ := r.exec(ctx, c, cfg, "gitleaks version")
	version := extractVersion(versionResult.Stdout)

	const reportPath = "/tmp/gitleaks.json"
	runResult, err := r.exec(ctx, c, cfg,
		"gitleaks detect --source . --no-git --redact --report-format json --report-path "+reportPath)
	reportResult, _ := r.exec(ctx, c, cfg, "cat "+reportPath+" || true")
	duration := time.Since(started).Seconds()

	if (err != nil || runResult.Failed()) && strings.TrimSpace(reportResult.Stdout) == "" {
		return GitleaksScanResult{
			Status:          ScanError,
			Version:         version,
			DurationSeconds: duration,
			ErrorMessage:    firstNonEmpty(runResult.Stderr, "gitleaks failed"),
		}
	}

	findings := parseGitleaksReport(reportResult.Stdout)
	status := ScanPass
	if len(findings) > 0 {
		status = ScanFail
	}
	return GitleaksScanResult{
		Status:          status,
		Version:         version,
		DurationSeconds: duration,
		FindingsCount:   len(findings),
		Findings:        findings,
	}
}

func parseGitleaksReport(jsonText string) []GitleaksFinding {
	if strings.TrimSpace(jsonText) == "" {
		return nil
	}
	var raw []map[string]any
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil
	}
	var findings []GitleaksFinding
	for _, item := range raw {
		ruleID, _ := firstString(item, "RuleID", "RuleId")
		filePath, _ := firstString(item, "File", "FilePath")
		if filePath == "" {
			continue
		}
		if ruleID == "" {
			ruleID = "unknown"
		}
		findings = append(findings, GitleaksFinding{RuleID: ruleID, FilePathHash: sha256Path(filePath)})
	}
	return findings
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

var severityRank = map[string]int{"UNKNOWN": 0, "LOW": 1, "MEDIUM": 2, "HIGH": 3, "CRITICAL": 4}

func failsThreshold(severityCounts map[string]int, threshold string) bool {
	t := strings.ToUpper(threshold)
	for sev, count := range severityCounts {
		if count > 0 && severityRank[strings.ToUpper(sev)] >= severityRank[t] {
			return true
		}
	}
	return false
}

func (r *Runner) runTrivy(ctx context.Context, c testcontainers.Container, cfg Config) TrivyScanResult {
	started := time.Now()
	versionResult, _ := r.exec(ctx, c, cfg, "trivy --version")
	version := extractVersion(versionResult.Stdout)

	const reportPath = "/tmp/trivy.json"
	runResult, err := r.exec(ctx, c, cfg,
		"trivy fs --format json --skip-db-update --skip-java-db-update --output "+reportPath+" .")
	reportResult, _ := r.exec(ctx, c, cfg, "cat "+reportPath+" || true")
	duration := time.Since(started).Seconds()

	if (err != nil || runResult.Failed()) && strings.TrimSpace(reportResult.Stdout) == "" {
		return TrivyScanResult{
			Status:          ScanError,
			Version:         version,
			DurationSeconds: duration,
			Threshold:       r.FailOnVulnSeverity,
			ErrorMessage:    firstNonEmpty(runResult.Stderr, "trivy failed"),
		}
	}

	severityCounts, topPackages := parseTrivyReport(reportResult.Stdout)
	total := 0
	for _, n := range severityCounts {
		total += n
	}
	status := ScanPass
	if failsThreshold(severityCounts, r.FailOnVulnSeverity) {
		status = ScanFail
	}
	return TrivyScanResult{
		Status:               status,
		Version:               version,
		DurationSeconds:       duration,
		TotalVulnerabilities: total,
		SeverityCounts:       severityCounts,
		TopPackages:          topPackages,
		Threshold:            r.FailOnVulnSeverity,
	}
}

func parseTrivyReport(jsonText string) (map[string]int, []TrivyPackageSummary) {
	severityCounts := map[string]int{}
	packageCounts := map[string]int{}
	if strings.TrimSpace(jsonText) == "" {
		return severityCounts, nil
	}

	var doc struct {
		Results []struct {
			Vulnerabilities []struct {
				Severity string `json:"Severity"`
				PkgName  string `json:"PkgName"`
			} `json:"Vulnerabilities"`
		} `json:"Results"`
	}
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return severityCounts, nil
	}
	for _, result := range doc.Results {
		for _, v := range result.Vulnerabilities {
			sev := strings.ToUpper(v.Severity)
			if sev == "" {
				sev = "UNKNOWN"
			}
			severityCounts[sev]++
			if v.PkgName != "" {
				packageCounts[v.PkgName]++
			}
		}
	}

	type kv struct {
		name  string
		count int
	}
	var sorted []kv
	for name, count := range packageCounts {
		sorted = append(sorted, kv{name, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})
	var top []TrivyPackageSummary
	for i, e := range sorted {
		if i >= 5 {
			break
		}
		top = append(top, TrivyPackageSummary{Name: e.name, Count: e.count})
	}
	return severityCounts, top
}

func (r *Runner) runSyft(ctx context.Context, c testcontainers.Container, cfg Config, runID string) SbomResult {
	started := time.Now()
	versionResult, _ := r.exec(ctx, c, cfg, "syft version")
	version := extractVersion(versionResult.Stdout)

	sbomResult, err := r.exec(ctx, c, cfg, "syft dir:. -o json")
	duration := time.Since(started).Seconds()

	if err != nil || sbomResult.ExitCode != 0 || sbomResult.TimedOut {
		return SbomResult{
			Status:          ScanError,
			Version:         version,
			DurationSeconds: duration,
			ErrorMessage:    firstNonEmpty(sbomResult.Stderr, "syft failed"),
		}
	}

	sbomBytes := []byte(sbomResult.Stdout)
	sha := sha256Hex(sbomBytes)
	relPath := "sbom/" + runID + ".syft.json.gz"

	return SbomResult{
		Status:          ScanGenerated,
		Version:         version,
		DurationSeconds: duration,
		Path:            relPath,
		SHA256:          sha,
		SizeBytes:       int64(len(sbomBytes)),
		Format:          "syft-json",
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
