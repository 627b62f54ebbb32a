package coretools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/history"
	"github.com/harun/ouro/pkg/toolexecutor"
)

func chatHistoryTool(store *history.Store) toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "chat_history",
		Description: "Look up past conversation turns, most recent or matching a search query.",
		Class:       toolexecutor.ClassReadOnly,
		Timeout:     15 * time.Second,
		Parameters: []toolexecutor.Parameter{
			{Name: "query", Type: "string", Description: "Substring to search for; omit for most recent turns"},
			{Name: "limit", Type: "integer", Description: "Maximum turns returned", Default: 20},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			limit := 20
			if raw, ok := args["limit"].(float64); ok && raw > 0 {
				limit = int(raw)
			}

			var (
				msgs []history.Message
				err  error
			)
			if query, _ := args["query"].(string); strings.TrimSpace(query) != "" {
				msgs, err = store.Search(ctx, strings.TrimSpace(query), limit)
			} else {
				msgs, err = store.Recent(ctx, limit)
			}
			if err != nil {
				return "", err
			}
			if len(msgs) == 0 {
				return "(no matching history)", nil
			}

			var b strings.Builder
			for _, m := range msgs {
				fmt.Fprintf(&b, "[%s] %s (task %s, round %d): %s\n",
					m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.TaskID, m.Round,
					firstChars(m.Content, 300))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func firstChars(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
