package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/toolexecutor"
)

const defaultReadLimit = 200000

func repoReadTool() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "repo_read",
		Description: "Read a file from the code repository.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     15 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Path relative to the repository root", Required: true},
			{Name: "max_bytes", Type: "integer", Description: "Maximum bytes to read", Default: defaultReadLimit},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			return readUnderRoot(env.RepoRoot, "repository", args)
		},
	}
}

func driveReadTool() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "drive_read",
		Description: "Read a file from the persistent drive (memory, notes, knowledge).",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     15 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Path relative to the drive root", Required: true},
			{Name: "max_bytes", Type: "integer", Description: "Maximum bytes to read", Default: defaultReadLimit},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			return readUnderRoot(env.DriveRoot, "drive", args)
		},
	}
}

func repoListTool() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "repo_list",
		Description: "List directory contents in the code repository.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     15 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Directory relative to the repository root", Default: "."},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			return listUnderRoot(env.RepoRoot, "repository", args)
		},
	}
}

func driveListTool() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "drive_list",
		Description: "List directory contents on the persistent drive.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     15 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Directory relative to the drive root", Default: "."},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			return listUnderRoot(env.DriveRoot, "drive", args)
		},
	}
}

func readUnderRoot(root, label string, args map[string]interface{}) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%s root is not configured", label)
	}
	pathValue, _ := args["path"].(string)
	target, err := resolveUnderRoot(root, pathValue)
	if err != nil {
		return "", err
	}

	maxBytes := int64(defaultReadLimit)
	if raw, ok := args["max_bytes"].(float64); ok && raw > 0 {
		maxBytes = int64(raw)
	}

	data, truncated, err := readFileWithLimit(target, maxBytes)
	if err != nil {
		return "", err
	}
	if truncated {
		return string(data) + fmt.Sprintf("\n... (file continues past %d bytes)", maxBytes), nil
	}
	return string(data), nil
}

func listUnderRoot(root, label string, args map[string]interface{}) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%s root is not configured", label)
	}
	pathValue, _ := args["path"].(string)
	if pathValue == "" {
		pathValue = "."
	}
	target, err := resolveUnderRoot(root, pathValue)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), info.Size())
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// resolveUnderRoot joins a relative path against root and rejects anything
// that escapes it.
func resolveUnderRoot(root, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the allowed root", pathValue)
	}
	return candidate, nil
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	truncated := false
	extra := make([]byte, 1)
	if _, err := file.Read(extra); err == nil {
		truncated = true
	}
	return buf.Bytes(), truncated, nil
}
