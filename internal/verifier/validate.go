package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rev/internal/router"
	"rev/internal/task"
)

// language is detected from manifests first, file extensions second.
type language string

const (
	langPython  language = "python"
	langNode    language = "node"
	langGo      language = "go"
	langRust    language = "rust"
	langUnknown language = "unknown"
)

var manifestByLanguage = map[language]string{
	langPython: "pyproject.toml",
	langNode:   "package.json",
	langGo:     "go.mod",
	langRust:   "Cargo.toml",
}

// validate is the strict-validation stage: run the task's explicit validation
// steps, or the mode-driven defaults, through the command runner.
func (v *Verifier) validate(ctx context.Context, t *task.Task, payload *resultPayload, prior Result, state *State) Result {
	if t.Action == task.ActionTest {
		// The test verdict already came from the rc mapping.
		return prior
	}
	if v.mode.Validation == router.ValidationNone {
		return prior
	}

	touched := v.touchedPaths(t, payload)
	filePath := firstFile(touched)

	commands := t.ValidationSteps
	explicit := len(commands) > 0
	if !explicit {
		commands = v.defaultCommands(touched)
	}

	if len(commands) == 0 || v.runner == nil || v.resolver == nil {
		// An edit with nothing to run is not verified, only plausible. The
		// loop reacts by injecting a targeted test task.
		result := inconclusive("change applied but no validation step ran")
		if filePath != "" {
			result = result.withDetail("file_path", filePath)
		}
		return result
	}

	dir := v.resolver.Primary()
	for _, command := range commands {
		rc, stdout, stderr, err := v.runner.Run(ctx, command, dir)
		if err != nil {
			return fail(fmt.Sprintf("validation command %q failed to start: %v", command, err))
		}

		if rc != 0 && isMissingTool(stderr) && v.mode.AutoInstall {
			if v.tryInstall(ctx, command, dir, state) {
				rc, stdout, stderr, err = v.runner.Run(ctx, command, dir)
				if err != nil {
					return fail(fmt.Sprintf("validation command %q failed to start: %v", command, err))
				}
			}
		}

		if rc != 0 && containsFold(stdout+stderr, "no tests found", "no tests ran", "collected 0 items") {
			if rewritten := rewriteNoTestsCommand(command, touched); rewritten != command {
				v.logger.Debug("rewriting test command %q -> %q", command, rewritten)
				rc, stdout, stderr, err = v.runner.Run(ctx, rewritten, dir)
				if err != nil {
					return fail(fmt.Sprintf("validation command %q failed to start: %v", rewritten, err))
				}
				command = rewritten
			}
		}

		if rc != 0 {
			return fail(fmt.Sprintf("validation %q failed with rc=%d", command, rc)).
				withDetail("command", command).
				withDetail("rc", rc).
				withDetail("stderr", tailLines(stderr, 20)).
				withDetail("stdout", tailLines(stdout, 20))
		}
	}
	return prior.withDetail("validated", len(commands))
}

// defaultCommands builds the mode-driven validation matrix for the touched
// files' language.
func (v *Verifier) defaultCommands(touched []string) []string {
	lang := v.detectLanguage(touched)
	switch v.mode.Validation {
	case router.ValidationSmoke:
		return smokeCommands(lang, touched)
	case router.ValidationTargeted:
		return targetedCommands(lang, touched)
	case router.ValidationFull:
		return fullCommands(lang)
	}
	return nil
}

func smokeCommands(lang language, touched []string) []string {
	switch lang {
	case langPython:
		return []string{"python -m compileall -q ."}
	case langNode:
		var cmds []string
		for _, path := range touched {
			if strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".mjs") {
				cmds = append(cmds, "node --check "+path)
			}
		}
		return cmds
	case langGo:
		return []string{"go vet ./..."}
	}
	return nil
}

func targetedCommands(lang language, touched []string) []string {
	switch lang {
	case langPython:
		cmds := []string{"python -m compileall -q ."}
		if files := joinFiles(touched, ".py"); files != "" {
			cmds = append(cmds, "ruff check "+files)
		}
		if dirs := testDirs(touched); len(dirs) > 0 {
			cmds = append(cmds, "pytest -q "+strings.Join(dirs, " "))
		}
		return cmds
	case langNode:
		return []string{"npm test"}
	case langGo:
		return []string{"go build ./...", "go test ./..."}
	case langRust:
		return []string{"cargo check", "cargo test"}
	}
	return nil
}

func fullCommands(lang language) []string {
	switch lang {
	case langPython:
		return []string{"python -m compileall -q .", "ruff check .", "mypy .", "pytest -q"}
	case langNode:
		return []string{"npm run build --if-present", "npx eslint .", "npm test"}
	case langGo:
		return []string{"go build ./...", "go vet ./...", "go test ./..."}
	case langRust:
		return []string{"cargo build", "cargo clippy", "cargo test"}
	}
	return nil
}

// detectLanguage prefers manifests in the workspace root over extensions.
func (v *Verifier) detectLanguage(touched []string) language {
	if v.resolver != nil {
		root := v.resolver.Primary()
		for lang, manifest := range manifestByLanguage {
			if _, err := os.Stat(filepath.Join(root, manifest)); err == nil {
				return lang
			}
		}
	}
	for _, path := range touched {
		switch filepath.Ext(path) {
		case ".py":
			return langPython
		case ".js", ".ts", ".jsx", ".tsx", ".vue", ".mjs":
			return langNode
		case ".go":
			return langGo
		case ".rs":
			return langRust
		}
	}
	return langUnknown
}

// tryInstall attempts the ecosystem install command, at most once per
// dependency-manifest mtime. A repeated attempt against an unchanged
// manifest is refused.
func (v *Verifier) tryInstall(ctx context.Context, failedCommand, dir string, state *State) bool {
	if state == nil {
		return false
	}

	lang := langPython
	if containsFold(failedCommand, "npm", "npx", "node", "eslint", "jest", "vitest", "tsc") {
		lang = langNode
	}

	manifest := filepath.Join(dir, manifestByLanguage[lang])
	var mtime int64
	if info, err := os.Stat(manifest); err == nil {
		mtime = info.ModTime().Unix()
	} else if lang == langNode {
		// Local dev tools need a package.json to land in.
		if rc, _, _, runErr := v.runner.Run(ctx, "npm init -y", dir); runErr != nil || rc != 0 {
			return false
		}
	}

	if prev, tried := state.InstallAttempts[manifest]; tried && prev == mtime {
		v.logger.Warn("refusing repeated auto-install: %s unchanged since last attempt", manifest)
		return false
	}
	state.InstallAttempts[manifest] = mtime

	install := "pip install " + missingToolName(failedCommand)
	if lang == langNode {
		install = "npm install --save-dev " + missingToolName(failedCommand)
	}
	rc, _, _, err := v.runner.Run(ctx, install, dir)
	return err == nil && rc == 0
}

func missingToolName(command string) string {
	for _, tool := range []string{"ruff", "mypy", "pytest", "eslint", "jest", "vitest", "tsc"} {
		if strings.Contains(command, tool) {
			if tool == "tsc" {
				return "typescript"
			}
			return tool
		}
	}
	fields := strings.Fields(command)
	if len(fields) > 0 {
		return fields[0]
	}
	return command
}

func isMissingTool(stderr string) bool {
	return containsFold(stderr,
		"command not found", "not recognized", "no module named",
		"cannot find module", "npx: command", "is not installed")
}

// rewriteNoTestsCommand conservatively rewrites a runner that found no tests.
// The runner is identified command-first: output only matters when the
// command is generic.
func rewriteNoTestsCommand(command string, touched []string) string {
	switch {
	case strings.Contains(command, "vitest"):
		cleaned := strings.ReplaceAll(command, "--runTestsByPath", "")
		cleaned = strings.Join(strings.Fields(cleaned), " ")
		if !strings.Contains(cleaned, "--run") {
			cleaned += " --run"
		}
		return cleaned
	case strings.Contains(command, "jest"):
		if !strings.Contains(command, "--runTestsByPath") {
			return command + " --runTestsByPath " + joinFiles(touched, ".js", ".ts", ".jsx", ".tsx")
		}
	case strings.Contains(command, "unittest"):
		// path/to/file.py -> path.to.file
		fields := strings.Fields(command)
		for i, field := range fields {
			if strings.HasSuffix(field, ".py") {
				fields[i] = strings.ReplaceAll(strings.TrimSuffix(field, ".py"), "/", ".")
			}
		}
		return strings.Join(fields, " ")
	}
	return command
}

func joinFiles(touched []string, exts ...string) string {
	var out []string
	for _, path := range touched {
		for _, ext := range exts {
			if strings.HasSuffix(path, ext) {
				out = append(out, path)
				break
			}
		}
	}
	return strings.Join(out, " ")
}

func testDirs(touched []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, path := range touched {
		dir := filepath.Dir(filepath.ToSlash(path))
		if !strings.Contains(dir, "test") {
			continue
		}
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

func firstFile(touched []string) string {
	for _, path := range touched {
		if strings.Contains(filepath.Base(path), ".") {
			return path
		}
	}
	return ""
}
