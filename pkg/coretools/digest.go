package coretools

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/toolexecutor"
)

// skipDirs are directories omitted from the digest.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

const maxDigestEntries = 500

func codebaseDigestTool() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "codebase_digest",
		Description: "Summarize the repository tree: file paths with sizes, grouped by directory.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     30 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Subtree relative to the repository root", Default: "."},
			{Name: "max_entries", Type: "integer", Description: "Maximum files listed", Default: maxDigestEntries},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			if env.RepoRoot == "" {
				return "", fmt.Errorf("repository root is not configured")
			}
			pathValue, _ := args["path"].(string)
			if pathValue == "" {
				pathValue = "."
			}
			root, err := resolveUnderRoot(env.RepoRoot, pathValue)
			if err != nil {
				return "", err
			}

			maxEntries := maxDigestEntries
			if raw, ok := args["max_entries"].(float64); ok && raw > 0 {
				maxEntries = int(raw)
			}

			type fileEntry struct {
				path string
				size int64
			}
			var files []fileEntry
			total := int64(0)
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if skipDirs[d.Name()] {
						return filepath.SkipDir
					}
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				files = append(files, fileEntry{path: rel, size: info.Size()})
				total += info.Size()
				return nil
			})
			if err != nil {
				return "", err
			}

			sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

			var b strings.Builder
			fmt.Fprintf(&b, "%d files, %d bytes total\n\n", len(files), total)
			shown := files
			if len(shown) > maxEntries {
				shown = shown[:maxEntries]
			}
			for _, f := range shown {
				fmt.Fprintf(&b, "%s (%d bytes)\n", f.path, f.size)
			}
			if len(files) > maxEntries {
				fmt.Fprintf(&b, "... and %d more files\n", len(files)-maxEntries)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}
