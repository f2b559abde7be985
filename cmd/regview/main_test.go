package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/config"
	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/output"
	"github.com/chis/regview/internal/testutil"
)

const testCreated = "2024-01-02T03:04:05Z"

type cliResult struct {
	code   int
	stdout string
	stderr string
}

// cli runs commands against a fake registry with an isolated config and .env file.
type cli struct {
	t        *testing.T
	registry *testutil.FakeRegistry
	dir      string
	stdin    string
}

func newCLI(t *testing.T, reg *testutil.FakeRegistry) *cli {
	t.Helper()
	t.Setenv(config.EnvRegistryName, "Test Registry")
	t.Setenv(config.EnvRegistryURL, "")
	t.Setenv("LOG_LEVEL", "")
	return &cli{t: t, registry: reg, dir: t.TempDir()}
}

func (c *cli) run(args ...string) cliResult {
	c.t.Helper()

	args = append(args,
		"--config", filepath.Join(c.dir, "regview.yaml"),
		"--env-file", filepath.Join(c.dir, ".env"),
		"--no-color",
	)
	if c.registry != nil {
		args = append(args, "--registry", c.registry.URL())
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(c.stdin), &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Version string `json:"version"`
}

func decode[T any](t *testing.T, body string) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(body), &env), "stdout: %s", body)
	return env
}

// seededRegistry serves three repositories and one resolvable tag.
// It returns the registry and the manifest digest of library/nginx:1.27.1.
func seededRegistry(t *testing.T) (*testutil.FakeRegistry, string) {
	t.Helper()

	reg := testutil.NewFakeRegistry()
	t.Cleanup(reg.Close)

	reg.SetCatalog(`{"repositories":["library/nginx","team/api","empty"]}`)
	reg.SetTags("library/nginx", `{"name":"library/nginx","tags":["1.25","latest","1.27.1","mainline"]}`)
	reg.SetTags("team/api", `{"name":"team/api","tags":["v2.0.0","v1.0.0"]}`)
	reg.SetTags("empty", `{"name":"empty","tags":null}`)

	manifest := testutil.NewManifest("nginx", 10, 20, 5)
	body, err := json.Marshal(manifest)
	require.NoError(t, err)
	cfg, err := json.Marshal(testutil.NewImageConfig(testCreated))
	require.NoError(t, err)

	dgst := digest.FromBytes(body).String()
	reg.SetManifest("library/nginx", "1.27.1", string(body), dgst)
	reg.SetBlob("library/nginx", manifest.Config.Digest, string(cfg))

	return reg, dgst
}

func findLine(t *testing.T, out, prefix string) []string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.Fields(line)
		}
	}
	t.Fatalf("no line starting with %q in:\n%s", prefix, out)
	return nil
}

func TestReposListsRepositories(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("repos")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Test Registry (3 repositories)")
	assert.Equal(t, []string{"REPOSITORY", "TAGS", "NEWEST"}, findLine(t, res.stdout, "REPOSITORY"))
	assert.Equal(t, []string{"library/nginx", "4", "1.27.1"}, findLine(t, res.stdout, "library/nginx"))
	assert.Equal(t, []string{"team/api", "2", "v2.0.0"}, findLine(t, res.stdout, "team/api"))
	assert.Equal(t, []string{"empty", "0", "-"}, findLine(t, res.stdout, "empty"))
}

func TestReposJSON(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("repos", "--json")

	require.Equal(t, 0, res.code, res.stderr)
	env := decode[api.RepositoriesResponse](t, res.stdout)
	assert.True(t, env.Success)
	assert.Equal(t, output.Version, env.Version)
	assert.Equal(t, 3, env.Data.Count)
	assert.Equal(t, "ready", string(env.Data.State))
	assert.True(t, env.Data.Connected)
	assert.False(t, env.Data.Loading)

	names := make([]string, 0, len(env.Data.Repositories))
	for _, repo := range env.Data.Repositories {
		names = append(names, repo.Name)
		assert.NotNil(t, repo.Tags, repo.Name)
	}
	assert.ElementsMatch(t, []string{"library/nginx", "team/api", "empty"}, names)
}

func TestReposSearch(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)

	res := c.run("repos", "--search", "API", "--json")
	require.Equal(t, 0, res.code, res.stderr)
	env := decode[api.RepositoriesResponse](t, res.stdout)
	require.Len(t, env.Data.Repositories, 1)
	assert.Equal(t, "team/api", env.Data.Repositories[0].Name)
	assert.Equal(t, "API", env.Data.Query)

	res = c.run("repos", "--search", "nothing-matches")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `No repositories match "nothing-matches"`)
}

func TestReposCatalogFailure(t *testing.T) {
	reg, _ := seededRegistry(t)
	reg.FailPath("/_catalog", 500)
	c := newCLI(t, reg)

	res := c.run("repos")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error:")
	assert.Empty(t, res.stdout)

	// --json reports the degraded snapshot on stdout instead
	res = c.run("repos", "--json")
	assert.Equal(t, 1, res.code)
	assert.NotContains(t, res.stderr, "Error:")
	env := decode[api.RepositoriesResponse](t, res.stdout)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
	assert.Equal(t, "degraded", string(env.Data.State))
	assert.Empty(t, env.Data.Repositories)
}

func TestReposUnhealthyRegistryWarns(t *testing.T) {
	reg, _ := seededRegistry(t)
	reg.SetUnhealthy(true)

	res := newCLI(t, reg).run("repos")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Cannot connect to Docker registry at "+reg.Server.URL)
	assert.Contains(t, res.stdout, "library/nginx")
}

func TestVerboseLogsCaller(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("repos", "--verbose")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "[DEBUG]")
	assert.Contains(t, res.stderr, "(orchestrator.go:")
}

func TestTagsSemverOrder(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("tags", "library/nginx", "--sort", "semver")

	require.Equal(t, 0, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Equal(t, []string{"latest", "1.27.1 (newest)", "1.25", "mainline"}, lines)
}

func TestTagsRegistryOrderJSON(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("tags", "library/nginx", "--json")

	require.Equal(t, 0, res.code, res.stderr)
	env := decode[api.TagsResponse](t, res.stdout)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"1.25", "latest", "1.27.1", "mainline"}, env.Data.Tags)
	assert.Equal(t, "library", env.Data.Namespace)
	assert.Equal(t, "nginx", env.Data.Name)
	assert.Equal(t, "1.27.1", env.Data.Newest)
	assert.False(t, env.Data.FetchFailed)
}

func TestTagsEmptyRepository(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("tags", "empty")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "empty has no tags\n", res.stdout)
}

func TestTagsFetchFailure(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("tags", "missing/repo", "--json")

	assert.Equal(t, 1, res.code)
	env := decode[api.TagsResponse](t, res.stdout)
	assert.False(t, env.Success)
	assert.True(t, env.Data.FetchFailed)
	assert.NotNil(t, env.Data.Tags)
	assert.Empty(t, env.Data.Tags)
}

func TestTagsRejectsInvalidInput(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)

	res := c.run("tags", "UPPER/case")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid")

	res = c.run("tags", "library/nginx", "--sort", "date")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, `unknown sort order "date"`)

	assert.Empty(t, reg.Requests(), "invalid input must not reach the registry")
}

func TestInspect(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("inspect", "library/nginx:1.27.1")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "library/nginx:1.27.1")
	assert.Equal(t, []string{"Size:", "35B"}, findLine(t, res.stdout, "Size:"))
	assert.Equal(t, []string{"Layers:", "3"}, findLine(t, res.stdout, "Layers:"))
	assert.Equal(t, []string{"Platform:", "linux/amd64"}, findLine(t, res.stdout, "Platform:"))
	assert.Equal(t, []string{"Cmd:", "/bin/sh"}, findLine(t, res.stdout, "Cmd:"))
	assert.Contains(t, findLine(t, res.stdout, "Created:"), testCreated)
	assert.NotContains(t, res.stdout, "estimated")
}

func TestInspectJSON(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("inspect", "library/nginx:1.27.1", "--json")

	require.Equal(t, 0, res.code, res.stderr)
	env := decode[imageinfo.ImageInfo](t, res.stdout)
	assert.True(t, env.Success)
	assert.Equal(t, int64(35), env.Data.Size)
	assert.Equal(t, testutil.NewManifest("nginx").Config.Digest, env.Data.Digest)
	assert.Equal(t, testCreated, env.Data.LastModified)
	assert.False(t, env.Data.LastModifiedEstimated)
	require.NotNil(t, env.Data.Config)
	assert.Equal(t, "amd64", env.Data.Config.Architecture)
}

func TestInspectErrors(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)

	res := c.run("inspect", "library/nginx:9.9.9")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "failed to fetch image info")

	res = c.run("inspect", "library/nginx")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "repository:tag")

	res = c.run("inspect", "library/nginx:9.9.9", "--json")
	assert.Equal(t, 1, res.code)
	env := decode[json.RawMessage](t, res.stdout)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "failed to fetch image info")
}

func TestDeleteWithYes(t *testing.T) {
	reg, dgst := seededRegistry(t)
	res := newCLI(t, reg).run("delete", "library/nginx:1.27.1", "--yes")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Deleted library/nginx:1.27.1\n", res.stdout)
	assert.Equal(t, []string{"library/nginx:" + dgst}, reg.Deleted())
}

func TestDeletePrompt(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantDeleted bool
	}{
		{"declined", "n\n", false},
		{"empty answer", "\n", false},
		{"no input", "", false},
		{"accepted", "y\n", true},
		{"accepted long form", "YES\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := seededRegistry(t)
			c := newCLI(t, reg)
			c.stdin = tt.answer

			res := c.run("delete", "library/nginx:1.27.1")

			require.Equal(t, 0, res.code, res.stderr)
			assert.Contains(t, res.stdout, "Delete library/nginx:1.27.1? [y/N]: ")
			if tt.wantDeleted {
				assert.Len(t, reg.Deleted(), 1)
				assert.Contains(t, res.stdout, "Deleted library/nginx:1.27.1")
			} else {
				assert.Empty(t, reg.Deleted())
				assert.Contains(t, res.stdout, "Aborted")
			}
		})
	}
}

func TestDeleteJSON(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)

	res := c.run("delete", "library/nginx:1.27.1", "--json")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, decode[json.RawMessage](t, res.stdout).Error, "--yes")
	assert.Empty(t, reg.Deleted())

	res = c.run("delete", "library/nginx:1.27.1", "--json", "--yes")
	require.Equal(t, 0, res.code, res.stderr)
	env := decode[api.DeleteResponse](t, res.stdout)
	assert.True(t, env.Success)
	assert.Equal(t, api.DeleteResponse{Repository: "library/nginx", Tag: "1.27.1", Deleted: true}, env.Data)
}

func TestDeleteWithoutDigest(t *testing.T) {
	reg, _ := seededRegistry(t)
	body, err := json.Marshal(testutil.NewManifest("nodigest", 1))
	require.NoError(t, err)
	reg.SetManifest("team/api", "v1.0.0", string(body), "")

	res := newCLI(t, reg).run("delete", "team/api:v1.0.0", "--yes")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "nothing deleted")
	assert.Empty(t, res.stdout)
	assert.Empty(t, reg.Deleted())
}

func TestDeleteMissingTag(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("delete", "library/nginx:0.0.1", "--yes")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error:")
	assert.Empty(t, reg.Deleted())
}

func TestVersion(t *testing.T) {
	c := newCLI(t, nil)

	res := c.run("version")
	require.Equal(t, 0, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "regview "+output.Version))

	res = c.run("version", "--json")
	require.Equal(t, 0, res.code, res.stderr)
	env := decode[VersionInfo](t, res.stdout)
	assert.Equal(t, output.Version, env.Data.Version)
	assert.NotEmpty(t, env.Data.Platform)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	reg, _ := seededRegistry(t)
	res := newCLI(t, reg).run("serve", "--port", "0")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid configuration")
}

func TestBrowseRefusesJSON(t *testing.T) {
	res := newCLI(t, nil).run("browse", "--json")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, decode[json.RawMessage](t, res.stdout).Error, "interactive")
}

func TestUnknownCommand(t *testing.T) {
	res := newCLI(t, nil).run("frobnicate")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "unknown command")
}

func TestYAMLConfigFile(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)
	t.Setenv(config.EnvRegistryName, "")

	yaml := "registry:\n  name: YAML Registry\n"
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "regview.yaml"), []byte(yaml), 0o644))

	res := c.run("repos")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "YAML Registry (3 repositories)")
}

func TestDotEnvFile(t *testing.T) {
	reg, _ := seededRegistry(t)
	c := newCLI(t, reg)
	// Restored by t.Setenv; godotenv only sets variables that are absent.
	os.Unsetenv(config.EnvRegistryName)

	require.NoError(t, os.WriteFile(filepath.Join(c.dir, ".env"), []byte("REGISTRY_NAME=Dotenv Registry\n"), 0o644))

	res := c.run("repos")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Dotenv Registry (3 repositories)")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{" Yes \n", true},
		{"yes", true},
		{"no\n", false},
		{"yep\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(tt.input), &out, "Proceed?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}

func TestDescribeCreated(t *testing.T) {
	now := time.Date(2024, 1, 4, 3, 4, 5, 0, time.UTC)

	got := describeCreated(&imageinfo.ImageInfo{LastModified: testCreated}, now)
	assert.Equal(t, testCreated+" (2 days ago)", got)

	got = describeCreated(&imageinfo.ImageInfo{LastModified: "2024-01-04T03:04:00Z", LastModifiedEstimated: true}, now)
	assert.Contains(t, got, "estimated")

	got = describeCreated(&imageinfo.ImageInfo{LastModified: "yesterday"}, now)
	assert.Equal(t, "yesterday", got)
}
