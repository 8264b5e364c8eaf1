package patchgen

import (
	"fmt"
	"regexp"
	"strings"
)

// dependencySpec is the {name, spec} pair carried in a FixOperation's
// Details map for add_dependency / pin_dependency operations.
type dependencySpec struct {
	Name string
	Spec string
}

func extractDependencySpec(details map[string]any) (dependencySpec, error) {
	name, _ := details["name"].(string)
	spec, _ := details["spec"].(string)
	if name == "" {
		return dependencySpec{}, fmt.Errorf("operation details missing required \"name\"")
	}
	return dependencySpec{Name: strings.TrimSpace(name), Spec: strings.TrimSpace(spec)}, nil
}

var poetryDependenciesHeader = regexp.MustCompile(`(?m)^\[tool\.poetry\.dependencies\][ \t]*\r?$`)

// upsertPyproject inserts or updates a dependency line under
// [tool.poetry.dependencies]. If the table is missing, it is appended.
func upsertPyproject(content string, dep dependencySpec) string {
	versionSpec := dep.Spec
	if versionSpec == "" {
		versionSpec = "*"
	}
	line := fmt.Sprintf("%s = %q", dep.Name, versionSpec)

	keyPattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(dep.Name) + `\s*=.*$`)
	if loc := poetryDependenciesHeader.FindStringIndex(content); loc != nil {
		sectionStart := loc[1]
		nextSection := regexp.MustCompile(`(?m)^\[`).FindStringIndex(content[sectionStart:])
		sectionEnd := len(content)
		if nextSection != nil {
			sectionEnd = sectionStart + nextSection[0]
		}
		section := content[sectionStart:sectionEnd]
		if keyPattern.MatchString(section) {
			updated := keyPattern.ReplaceAllString(section, line)
			return content[:sectionStart] + updated + content[sectionEnd:]
		}
		insertion := strings.TrimRight(section, "\n") + "\n" + line + "\n"
		return content[:sectionStart] + insertion + content[sectionEnd:]
	}

	suffix := ""
	if !strings.HasSuffix(content, "\n") {
		suffix = "\n"
	}
	return content + suffix + "\n[tool.poetry.dependencies]\n" + line + "\n"
}

var requirementLinePattern = func(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(name) + `\s*(==|>=|<=|~=|!=|>|<)?.*$`)
}

// upsertRequirements inserts or updates a "name<op>spec" line in a
// requirements.txt-style file, appending if the package isn't present.
func upsertRequirements(content string, dep dependencySpec) string {
	op := "=="
	versionSpec := dep.Spec
	if versionSpec == "" {
		return replaceOrAppendRequirementLine(content, dep.Name, dep.Name)
	}
	if strings.HasPrefix(versionSpec, "==") || strings.HasPrefix(versionSpec, ">=") ||
		strings.HasPrefix(versionSpec, "<=") || strings.HasPrefix(versionSpec, "~=") ||
		strings.HasPrefix(versionSpec, "!=") || strings.HasPrefix(versionSpec, ">") ||
		strings.HasPrefix(versionSpec, "<") {
		return replaceOrAppendRequirementLine(content, dep.Name, dep.Name+versionSpec)
	}
	line := dep.Name + op + versionSpec
	return replaceOrAppendRequirementLine(content, dep.Name, line)
}

func replaceOrAppendRequirementLine(content, name, newLine string) string {
	pattern := requirementLinePattern(name)
	if pattern.MatchString(content) {
		return pattern.ReplaceAllString(content, newLine)
	}
	suffix := ""
	if content != "" && !strings.HasSuffix(content, "\n") {
		suffix = "\n"
	}
	return content + suffix + newLine + "\n"
}

var packageJSONDependenciesBlock = regexp.MustCompile(`(?s)"dependencies"\s*:\s*\{(.*?)\}`)

// upsertPackageJSON inserts or updates an entry in the top-level
// "dependencies" object using textual editing (preserves formatting of the
// rest of the file rather than round-tripping through encoding/json, which
// would reorder keys).
func upsertPackageJSON(content string, dep dependencySpec) (string, error) {
	versionSpec := dep.Spec
	if versionSpec == "" {
		versionSpec = "latest"
	}
	entryPattern := regexp.MustCompile(`"` + regexp.QuoteMeta(dep.Name) + `"\s*:\s*"[^"]*"`)
	newEntry := fmt.Sprintf("%q: %q", dep.Name, versionSpec)

	loc := packageJSONDependenciesBlock.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", fmt.Errorf(`package.json has no top-level "dependencies" object`)
	}
	blockStart, blockEnd := loc[2], loc[3]
	block := content[blockStart:blockEnd]

	if entryPattern.MatchString(block) {
		updated := entryPattern.ReplaceAllString(block, newEntry)
		return content[:blockStart] + updated + content[blockEnd:], nil
	}

	trimmed := strings.TrimRight(block, " \t\n")
	separator := ","
	if strings.TrimSpace(trimmed) == "" {
		separator = ""
	}
	updated := trimmed + separator + "\n    " + newEntry + "\n  "
	return content[:blockStart] + updated + content[blockEnd:], nil
}

var goModRequireLine = func(module string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^(\s*)` + regexp.QuoteMeta(module) + `\s+v\S+(\s+//.*)?$`)
}
var goModRequireBlock = regexp.MustCompile(`(?ms)^require \(\n(.*?)\n\)`)

// upsertGoMod inserts or updates a module@version line, preferring the
// require(...) block if present, else a single-line "require module version".
func upsertGoMod(content string, dep dependencySpec) string {
	version := dep.Spec
	if version == "" {
		version = "latest"
	}
	pattern := goModRequireLine(dep.Name)
	if pattern.MatchString(content) {
		return pattern.ReplaceAllString(content, "${1}"+dep.Name+" "+version)
	}

	newLine := fmt.Sprintf("\t%s %s", dep.Name, version)
	if loc := goModRequireBlock.FindStringSubmatchIndex(content); loc != nil {
		bodyStart, bodyEnd := loc[2], loc[3]
		updated := strings.TrimRight(content[bodyStart:bodyEnd], "\n") + "\n" + newLine
		return content[:bodyStart] + updated + content[bodyEnd:]
	}

	suffix := ""
	if !strings.HasSuffix(content, "\n") {
		suffix = "\n"
	}
	return content + suffix + fmt.Sprintf("\nrequire %s %s\n", dep.Name, version)
}

var pomDependencyPattern = func(artifactID string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<dependency>\s*.*?<artifactId>` + regexp.QuoteMeta(artifactID) + `</artifactId>.*?</dependency>`)
}
var pomDependenciesBlock = regexp.MustCompile(`(?s)<dependencies>(.*?)</dependencies>`)

// upsertPom inserts or updates a Maven <dependency> entry, addressed by
// artifactId (dep.Name is expected as "groupId:artifactId").
func upsertPom(content string, dep dependencySpec) (string, error) {
	groupID, artifactID := dep.Name, dep.Name
	if idx := strings.Index(dep.Name, ":"); idx >= 0 {
		groupID, artifactID = dep.Name[:idx], dep.Name[idx+1:]
	}
	version := dep.Spec
	if version == "" {
		version = "LATEST"
	}
	entry := fmt.Sprintf("<dependency>\n      <groupId>%s</groupId>\n      <artifactId>%s</artifactId>\n      <version>%s</version>\n    </dependency>",
		groupID, artifactID, version)

	existing := pomDependencyPattern(artifactID)
	if existing.MatchString(content) {
		return existing.ReplaceAllString(content, entry), nil
	}

	loc := pomDependenciesBlock.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", fmt.Errorf("pom.xml has no <dependencies> block")
	}
	bodyStart, bodyEnd := loc[2], loc[3]
	updated := strings.TrimRight(content[bodyStart:bodyEnd], " \t\n") + "\n    " + entry + "\n  "
	return content[:bodyStart] + updated + content[bodyEnd:], nil
}
