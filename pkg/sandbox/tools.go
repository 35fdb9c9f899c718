package sandbox

import (
	"context"
	"fmt"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/registry"
)

// Tool names shared by every sandbox kind.
const (
	ToolBash      = "bash"
	ToolReadFile  = "readFile"
	ToolWriteFile = "writeFile"
	ToolListFiles = "listFiles"
)

// Definitions describes the sandbox tool set to a model.
func Definitions() []domain.Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	object := func(props map[string]any, required ...string) map[string]any {
		return map[string]any{"type": "object", "properties": props, "required": required}
	}
	return []domain.Tool{
		{
			Name:        ToolBash,
			Description: "Run a shell command in the sandbox working directory. Returns exit code, stdout and stderr.",
			Parameters:  object(map[string]any{"command": str("Shell command line")}, "command"),
		},
		{
			Name:        ToolReadFile,
			Description: "Read a text file, relative to the working directory.",
			Parameters:  object(map[string]any{"path": str("File path")}, "path"),
		},
		{
			Name:        ToolWriteFile,
			Description: "Create or overwrite a text file, relative to the working directory.",
			Parameters:  object(map[string]any{"path": str("File path"), "content": str("Full file content")}, "path", "content"),
		},
		{
			Name:        ToolListFiles,
			Description: "List a directory, relative to the working directory. Defaults to the working directory itself.",
			Parameters:  object(map[string]any{"path": str("Directory path")}),
		},
	}
}

// StringArg reads a string argument. Missing or non-string values are errors
// unless optional is set, in which case they yield "".
func StringArg(args map[string]any, key string, optional bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// remoteTools binds the tool set to a live handle. Every tool runs through
// "sh -c" with the working directory as the first command.
func remoteTools(handle ports.RemoteHandle, workDir string) *registry.Registry {
	reg := registry.NewRegistry()
	defs := Definitions()

	run := func(ctx context.Context, script string, extra ...string) (domain.CommandResult, error) {
		args := append([]string{"-c", "cd " + shellQuote(workDir) + " && " + script, "sh"}, extra...)
		return handle.RunCommand(ctx, "sh", args)
	}
	failed := func(op string, res domain.CommandResult) error {
		return fmt.Errorf("%s exited with code %d: %s", op, res.ExitCode, res.Stderr)
	}

	reg.Register(defs[0], func(ctx context.Context, args map[string]any) (any, error) {
		command, err := StringArg(args, "command", false)
		if err != nil {
			return nil, err
		}
		return run(ctx, command)
	})

	reg.Register(defs[1], func(ctx context.Context, args map[string]any) (any, error) {
		path, err := StringArg(args, "path", false)
		if err != nil {
			return nil, err
		}
		res, err := run(ctx, `cat -- "$1"`, path)
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, failed("readFile", res)
		}
		return res.Stdout, nil
	})

	reg.Register(defs[2], func(ctx context.Context, args map[string]any) (any, error) {
		path, err := StringArg(args, "path", false)
		if err != nil {
			return nil, err
		}
		content, err := StringArg(args, "content", false)
		if err != nil {
			return nil, err
		}
		res, err := run(ctx, `mkdir -p "$(dirname -- "$1")" && printf '%s' "$2" > "$1"`, path, content)
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, failed("writeFile", res)
		}
		return map[string]any{"path": path, "bytes": len(content)}, nil
	})

	reg.Register(defs[3], func(ctx context.Context, args map[string]any) (any, error) {
		path, err := StringArg(args, "path", true)
		if err != nil {
			return nil, err
		}
		if path == "" {
			path = "."
		}
		res, err := run(ctx, `ls -1A -- "$1"`, path)
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, failed("listFiles", res)
		}
		return res.Stdout, nil
	})

	return reg
}
