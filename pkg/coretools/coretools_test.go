package coretools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/ouro/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *toolexecutor.Env {
	t.Helper()
	return &toolexecutor.Env{
		RepoRoot:  t.TempDir(),
		DriveRoot: t.TempDir(),
		TaskID:    "test",
	}
}

func TestRegisterCoreTools(t *testing.T) {
	registry := toolexecutor.NewRegistry()
	require.NoError(t, Register(registry, Options{}))

	names := registry.List()
	for _, want := range []string{
		"repo_read", "repo_list", "drive_read", "drive_list",
		"codebase_digest", "web_search", "shell_exec",
	} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, "chat_history", "history tool needs a store")
	assert.NotContains(t, names, "browse_page", "browser tools need a session")

	assert.Equal(t, toolexecutor.ClassReadOnly, registry.ClassOf("repo_read"))
	assert.Equal(t, toolexecutor.ClassDefault, registry.ClassOf("shell_exec"))
	assert.True(t, registry.Get("shell_exec").IsCodeTool)
}

func TestRepoReadAndList(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.RepoRoot, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.RepoRoot, "src", "main.go"), []byte("package main\n"), 0644))

	out, err := repoReadTool().Handler(context.Background(), env, map[string]interface{}{
		"path": "src/main.go",
	})
	require.NoError(t, err)
	assert.Equal(t, "package main\n", out)

	out, err = repoListTool().Handler(context.Background(), env, map[string]interface{}{
		"path": ".",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "src/")
}

func TestReadRejectsTraversal(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../b"} {
		_, err := repoReadTool().Handler(context.Background(), env, map[string]interface{}{
			"path": path,
		})
		assert.Error(t, err, path)
	}
}

func TestReadTruncatesLargeFiles(t *testing.T) {
	env := newEnv(t)
	big := make([]byte, 500)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.RepoRoot, "big.txt"), big, 0644))

	out, err := repoReadTool().Handler(context.Background(), env, map[string]interface{}{
		"path":      "big.txt",
		"max_bytes": float64(100),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "file continues past 100 bytes")
}

func TestCodebaseDigestSkipsVendoredDirs(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.RepoRoot, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.RepoRoot, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.RepoRoot, "main.go"), []byte("package main"), 0644))

	out, err := codebaseDigestTool().Handler(context.Background(), env, map[string]interface{}{})
	require.NoError(t, err)
	assert.Contains(t, out, "main.go")
	assert.NotContains(t, out, "HEAD")
	assert.Contains(t, out, "1 files")
}

func TestShellExecReportsExitCode(t *testing.T) {
	env := newEnv(t)
	tool := shellExecTool(10 * time.Second)

	out, err := tool.Handler(context.Background(), env, map[string]interface{}{
		"command": "echo hello && echo oops >&2",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "exit code: 0")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "oops")

	out, err = tool.Handler(context.Background(), env, map[string]interface{}{
		"command": "exit 3",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "exit code: 3")
}

func TestShellExecHonorsStdin(t *testing.T) {
	env := newEnv(t)
	out, err := shellExecTool(10*time.Second).Handler(context.Background(), env, map[string]interface{}{
		"command": "cat",
		"stdin":   "piped input",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "piped input")
}

func TestWebSearchParsesResults(t *testing.T) {
	page := `
	<div class="result">
		<a class="result__a" href="/l/?uddg=https%3A%2F%2Fexample.com%2Fdocs">Example <b>Docs</b></a>
	</div>
	<div class="result">
		<a class="result__a" href="https://other.example/page">Other Page</a>
	</div>`

	results := parseSearchResults(page, 10)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "Example Docs")
	assert.Contains(t, results[0], "https://example.com/docs")
	assert.Contains(t, results[1], "https://other.example/page")

	limited := parseSearchResults(page, 1)
	assert.Len(t, limited, 1)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "plain bold text", stripTags("plain <b>bold</b> text"))
	assert.Equal(t, "nothing", stripTags("nothing"))
}
