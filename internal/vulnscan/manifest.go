// Package vulnscan matches dependency manifests against an OSV-style
// vulnerability database.
package vulnscan

import (
	"encoding/json"
	"path"
	"strings"
)

// Package is one declared dependency extracted from a manifest.
type Package struct {
	Name      string
	Version   string
	Ecosystem string
}

// ParseManifest extracts packages from a manifest the scanner understands.
// Unknown manifest names yield nil.
func ParseManifest(filePath, content string) []Package {
	switch strings.ToLower(path.Base(filePath)) {
	case "package.json":
		return parsePackageJSON(content)
	case "requirements.txt":
		return parseRequirementsTxt(content)
	case "pyproject.toml":
		return parsePyprojectToml(content)
	case "go.mod":
		return parseGoMod(content)
	default:
		return nil
	}
}

func parsePackageJSON(content string) []Package {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return nil
	}

	var pkgs []Package
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		for name, version := range deps {
			v := cleanVersion(version)
			if v == "" {
				continue // workspace:, file:, git refs
			}
			pkgs = append(pkgs, Package{Name: name, Version: v, Ecosystem: "npm"})
		}
	}
	return pkgs
}

func parseRequirementsTxt(content string) []Package {
	var pkgs []Package
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name := line
		for i, c := range line {
			if strings.ContainsRune("=<>!~[; ", c) {
				name = line[:i]
				break
			}
		}
		if name == "" {
			continue
		}
		version := cleanVersion(line[len(name):])
		if version == "" {
			continue // unpinned requirements cannot be queried
		}
		pkgs = append(pkgs, Package{Name: name, Version: version, Ecosystem: "PyPI"})
	}
	return pkgs
}

// parsePyprojectToml handles the two common dependency shapes: PEP 621
// `dependencies = ["name==1.0", ...]` arrays and poetry's
// `[tool.poetry.dependencies]` table. A full TOML parse is not needed for
// either.
func parsePyprojectToml(content string) []Package {
	var pkgs []Package
	inDepsArray := false
	inPoetryTable := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "[") {
			inDepsArray = false
			inPoetryTable = line == "[tool.poetry.dependencies]"
			continue
		}

		if strings.HasPrefix(line, "dependencies") && strings.Contains(line, "[") {
			inDepsArray = !strings.Contains(line, "]")
			for _, spec := range extractQuoted(line) {
				if p, ok := parseRequirementSpec(spec); ok {
					pkgs = append(pkgs, p)
				}
			}
			continue
		}

		if inDepsArray {
			if strings.Contains(line, "]") {
				inDepsArray = false
			}
			for _, spec := range extractQuoted(line) {
				if p, ok := parseRequirementSpec(spec); ok {
					pkgs = append(pkgs, p)
				}
			}
			continue
		}

		if inPoetryTable {
			name, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			name = strings.TrimSpace(name)
			if name == "python" || name == "" {
				continue
			}
			version := cleanVersion(strings.Trim(strings.TrimSpace(value), `"'`))
			if version == "" {
				continue
			}
			pkgs = append(pkgs, Package{Name: name, Version: version, Ecosystem: "PyPI"})
		}
	}
	return pkgs
}

func parseRequirementSpec(spec string) (Package, bool) {
	pkgs := parseRequirementsTxt(spec)
	if len(pkgs) != 1 {
		return Package{}, false
	}
	return pkgs[0], true
}

func extractQuoted(line string) []string {
	var out []string
	for {
		start := strings.IndexByte(line, '"')
		if start < 0 {
			return out
		}
		rest := line[start+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return out
		}
		out = append(out, rest[:end])
		line = rest[end+1:]
	}
}

func parseGoMod(content string) []Package {
	var pkgs []Package
	inBlock := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "require (":
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		case strings.HasPrefix(line, "require "):
			line = strings.TrimPrefix(line, "require ")
		case !inBlock:
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "v") {
			continue
		}
		pkgs = append(pkgs, Package{
			Name:      fields[0],
			Version:   cleanVersion(fields[1]),
			Ecosystem: "Go",
		})
	}
	return pkgs
}

// cleanVersion strips range operators and prefixes down to a plain
// dotted version: leading non-digits go, and the version ends at the
// first char outside [0-9.].
func cleanVersion(v string) string {
	v = strings.TrimSpace(v)
	start := -1
	for i, c := range v {
		if c >= '0' && c <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	v = v[start:]
	for i, c := range v {
		if (c < '0' || c > '9') && c != '.' {
			return v[:i]
		}
	}
	return v
}
