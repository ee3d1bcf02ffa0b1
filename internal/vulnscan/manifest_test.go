package vulnscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanVersion(t *testing.T) {
	cases := map[string]string{
		"^4.17.11":      "4.17.11",
		"~1.2.3":        "1.2.3",
		">=2.0.0":       "2.0.0",
		"==1.26.5":      "1.26.5",
		"v1.9.0":        "1.9.0",
		"1.2.3-rc1":     "1.2.3",
		"4.17.11":       "4.17.11",
		"workspace:*":   "",
		"file:../local": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanVersion(in), "cleanVersion(%q)", in)
	}
}

func TestParsePackageJSON(t *testing.T) {
	content := `{
  "name": "app",
  "dependencies": {"lodash": "^4.17.11", "express": "4.18.2", "local": "file:../local"},
  "devDependencies": {"jest": "~29.0.0"}
}`
	pkgs := ParseManifest("package.json", content)
	require.Len(t, pkgs, 3)

	byName := map[string]Package{}
	for _, p := range pkgs {
		byName[p.Name] = p
	}
	assert.Equal(t, Package{Name: "lodash", Version: "4.17.11", Ecosystem: "npm"}, byName["lodash"])
	assert.Equal(t, "29.0.0", byName["jest"].Version)
	assert.NotContains(t, byName, "local")
}

func TestParseRequirementsTxt(t *testing.T) {
	content := `# pinned deps
requests==2.25.0
urllib3>=1.26.5
flask[async]==2.0.1
-r other.txt

pytest
`
	pkgs := ParseManifest("requirements.txt", content)
	require.Len(t, pkgs, 3, "comments, options, and unpinned lines are skipped")

	assert.Equal(t, Package{Name: "requests", Version: "2.25.0", Ecosystem: "PyPI"}, pkgs[0])
	assert.Equal(t, "urllib3", pkgs[1].Name)
	assert.Equal(t, "1.26.5", pkgs[1].Version)
	assert.Equal(t, "flask", pkgs[2].Name)
	assert.Equal(t, "2.0.1", pkgs[2].Version)
}

func TestParsePyprojectToml(t *testing.T) {
	content := `[project]
name = "app"
dependencies = [
    "django==4.2.1",
    "celery>=5.3",
]

[tool.poetry.dependencies]
python = "^3.11"
httpx = "^0.24.1"
`
	pkgs := ParseManifest("pyproject.toml", content)
	require.Len(t, pkgs, 3)

	byName := map[string]Package{}
	for _, p := range pkgs {
		byName[p.Name] = p
	}
	assert.Equal(t, "4.2.1", byName["django"].Version)
	assert.Equal(t, "5.3", byName["celery"].Version)
	assert.Equal(t, "0.24.1", byName["httpx"].Version)
	assert.NotContains(t, byName, "python")
}

func TestParseGoMod(t *testing.T) {
	content := `module example.com/app

go 1.22

require (
	github.com/labstack/echo/v4 v4.11.1
	github.com/rs/zerolog v1.31.0 // indirect
)

require golang.org/x/sync v0.5.0
`
	pkgs := ParseManifest("go.mod", content)
	require.Len(t, pkgs, 3)

	assert.Equal(t, Package{Name: "github.com/labstack/echo/v4", Version: "4.11.1", Ecosystem: "Go"}, pkgs[0])
	assert.Equal(t, "golang.org/x/sync", pkgs[2].Name)
}

func TestParseManifestUnknownName(t *testing.T) {
	assert.Nil(t, ParseManifest("Cargo.lock", "whatever"))
}
