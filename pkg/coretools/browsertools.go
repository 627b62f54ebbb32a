package coretools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/browser"
	"github.com/harun/ouro/pkg/toolexecutor"
)

func browsePageTool(session *browser.Session) toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "browse_page",
		Description: "Open a URL in the persistent browser session and return the page text.",
		Class:       toolexecutor.ClassStateful,
		Timeout:     60 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "url", Type: "string", Description: "URL to open", Required: true},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			rawURL, _ := args["url"].(string)
			snapshot, err := session.Open(ctx, strings.TrimSpace(rawURL))
			if err != nil {
				return "", err
			}
			return formatSnapshot(snapshot), nil
		},
	}
}

func browserActionTool(session *browser.Session) toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "browser_action",
		Description: "Interact with the current browser page: click, type, read, or screenshot.",
		Class:       toolexecutor.ClassStateful,
		Timeout:     60 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "action", Type: "string", Description: "One of: click, type, read, screenshot", Required: true},
			{Name: "selector", Type: "string", Description: "CSS selector for click and type"},
			{Name: "text", Type: "string", Description: "Text to type"},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			action, _ := args["action"].(string)
			selector, _ := args["selector"].(string)

			switch strings.TrimSpace(action) {
			case "click":
				if selector == "" {
					return "", fmt.Errorf("selector is required for click")
				}
				if err := session.Click(ctx, selector); err != nil {
					return "", err
				}
				snapshot, err := session.Snapshot(ctx)
				if err != nil {
					return "", err
				}
				return formatSnapshot(snapshot), nil
			case "type":
				text, _ := args["text"].(string)
				if selector == "" || text == "" {
					return "", fmt.Errorf("selector and text are required for type")
				}
				if err := session.Type(ctx, selector, text); err != nil {
					return "", err
				}
				return fmt.Sprintf("typed %d characters into %s", len(text), selector), nil
			case "read":
				snapshot, err := session.Snapshot(ctx)
				if err != nil {
					return "", err
				}
				return formatSnapshot(snapshot), nil
			case "screenshot":
				b64, err := session.Screenshot(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("screenshot captured (%d bytes base64):\n%s", len(b64), b64), nil
			default:
				return "", fmt.Errorf("unknown action: %s", action)
			}
		},
	}
}

func formatSnapshot(s *browser.PageSnapshot) string {
	return fmt.Sprintf("URL: %s\nTitle: %s\n\n%s", s.URL, s.Title, s.Text)
}
