package coretools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harun/ouro/pkg/toolexecutor"
)

const maxShellOutput = 30000

func shellExecTool(timeout time.Duration) toolexecutor.Definition {
	return toolexecutor.Definition{
		Name:        "shell_exec",
		Description: "Run a shell command in the repository and return stdout, stderr, and exit code.",
		Class:       toolexecutor.ClassDefault,
		IsCodeTool:  true,
		Timeout:     timeout,
		Parameters: []toolexecutor.Parameter{
			{Name: "command", Type: "string", Description: "Shell command to run", Required: true},
			{Name: "cwd", Type: "string", Description: "Working directory relative to the repository root"},
			{Name: "stdin", Type: "string", Description: "Standard input"},
		},
		Handler: func(ctx context.Context, env *toolexecutor.Env, args map[string]interface{}) (string, error) {
			command, _ := args["command"].(string)
			command = strings.TrimSpace(command)
			if command == "" {
				return "", fmt.Errorf("command is required")
			}

			cwd := env.RepoRoot
			if raw, ok := args["cwd"].(string); ok && strings.TrimSpace(raw) != "" {
				resolved, err := resolveUnderRoot(env.RepoRoot, raw)
				if err != nil {
					return "", err
				}
				cwd = resolved
			}

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Dir = cwd
			if stdin, ok := args["stdin"].(string); ok && stdin != "" {
				cmd.Stdin = strings.NewReader(stdin)
			}

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			exitCode := 0
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				} else {
					return "", fmt.Errorf("command failed to start: %w", runErr)
				}
			}

			var b strings.Builder
			fmt.Fprintf(&b, "exit code: %d\n", exitCode)
			if out := strings.TrimRight(stdout.String(), "\n"); out != "" {
				fmt.Fprintf(&b, "stdout:\n%s\n", clampOutput(out))
			}
			if errOut := strings.TrimRight(stderr.String(), "\n"); errOut != "" {
				fmt.Fprintf(&b, "stderr:\n%s\n", clampOutput(errOut))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func clampOutput(s string) string {
	if len(s) <= maxShellOutput {
		return s
	}
	return s[:maxShellOutput] + "\n... (output truncated)"
}
