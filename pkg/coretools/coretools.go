// Package coretools registers the built-in tool set: repository and drive
// file access, shell execution, web search, conversation history, and the
// stateful browser tools.
package coretools

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harun/ouro/pkg/browser"
	"github.com/harun/ouro/pkg/history"
	"github.com/harun/ouro/pkg/toolexecutor"
)

// Options configures core tool registration. Nil optional fields disable
// the tools that depend on them.
type Options struct {
	History    *history.Store
	Browser    *browser.Session
	HTTPClient *http.Client

	ShellTimeout time.Duration
}

// Register registers all core tools on the registry.
func Register(registry *toolexecutor.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = 120 * time.Second
	}

	tools := []toolexecutor.Definition{
		repoReadTool(),
		repoListTool(),
		driveReadTool(),
		driveListTool(),
		codebaseDigestTool(),
		webSearchTool(opts.HTTPClient),
		shellExecTool(opts.ShellTimeout),
	}
	if opts.History != nil {
		tools = append(tools, chatHistoryTool(opts.History))
	}
	if opts.Browser != nil {
		tools = append(tools, browsePageTool(opts.Browser), browserActionTool(opts.Browser))
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}
