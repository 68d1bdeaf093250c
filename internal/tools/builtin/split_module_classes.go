package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"rev/internal/agent/ports"
	"rev/internal/toolerr"
)

var classDefRe = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)`)

type splitModuleClasses struct {
	cfg FileToolConfig
}

// NewSplitModuleClasses converts a Python module into a package, one file per
// top-level class, with an __init__.py that re-exports every class. A module
// with no top-level classes is left untouched and reported as classes_split=0.
func NewSplitModuleClasses(cfg FileToolConfig) ports.ToolExecutor {
	return &splitModuleClasses{cfg: cfg}
}

func (t *splitModuleClasses) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	resolved, fail := resolvePath(t.cfg, call, "split_module_classes", "path", "write")
	if fail != nil {
		return fail, nil
	}
	if !strings.HasSuffix(resolved.Abs, ".py") {
		return failResult(call, toolerr.New(toolerr.ValidationError, "split_module_classes",
			fmt.Sprintf("%s is not a Python module", resolved.Rel))), nil
	}

	raw, err := os.ReadFile(resolved.Abs)
	if err != nil {
		return failResult(call, toolerr.Classify(err, "split_module_classes", err.Error())), nil
	}

	parsed := parsePythonModule(string(raw))

	pkgAbs := strings.TrimSuffix(resolved.Abs, ".py")
	pkgRel := strings.TrimSuffix(resolved.Rel, ".py")
	initRel := pkgRel + "/__init__.py"

	meta := pathMetadata(resolved)
	meta["classes_split"] = len(parsed.classes)
	meta["package_dir"] = pkgRel
	meta["package_init"] = initRel

	if len(parsed.classes) == 0 {
		return &ports.ToolResult{
			CallID:   call.ID,
			Content:  fmt.Sprintf("%s has no top-level classes; nothing to split", resolved.Rel),
			Metadata: meta,
		}, nil
	}

	if err := os.MkdirAll(pkgAbs, 0o755); err != nil {
		return failResult(call, toolerr.Classify(err, "split_module_classes", err.Error())), nil
	}

	files := make([]string, 0, len(parsed.classes))
	for _, class := range parsed.classes {
		fileName := camelToSnake(class.name) + ".py"
		content := strings.TrimRight(strings.Join(parsed.imports, "\n"), "\n")
		if content != "" {
			content += "\n\n\n"
		}
		content += strings.TrimRight(class.body, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(pkgAbs, fileName), []byte(content), 0o644); err != nil {
			return failResult(call, toolerr.Classify(err, "split_module_classes", err.Error())), nil
		}
		files = append(files, pkgRel+"/"+fileName)
	}

	initContent := buildInit(parsed)
	if err := os.WriteFile(filepath.Join(pkgAbs, "__init__.py"), []byte(initContent), 0o644); err != nil {
		return failResult(call, toolerr.Classify(err, "split_module_classes", err.Error())), nil
	}

	// The package replaces the flat module.
	if err := os.Remove(resolved.Abs); err != nil {
		return failResult(call, toolerr.Classify(err, "split_module_classes", err.Error())), nil
	}

	meta["class_files"] = files
	return &ports.ToolResult{
		CallID: call.ID,
		Content: fmt.Sprintf("split %d class(es) from %s into package %s/",
			len(parsed.classes), resolved.Rel, pkgRel),
		Metadata: meta,
	}, nil
}

type pythonClass struct {
	name string
	body string
}

type pythonModule struct {
	imports   []string
	classes   []pythonClass
	remainder []string
}

// parsePythonModule splits a module's source into top-level imports, class
// blocks (including their decorators), and everything else. The scan is
// line-based and indentation-driven; it does not need a full Python parser.
func parsePythonModule(source string) *pythonModule {
	lines := strings.Split(source, "\n")
	mod := &pythonModule{}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		indented := len(line) > 0 && (line[0] == ' ' || line[0] == '\t')

		switch {
		case !indented && (strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ")):
			block, next := consumeImport(lines, i)
			mod.imports = append(mod.imports, block...)
			i = next

		case !indented && (classDefRe.MatchString(trimmed) || isDecoratorBeforeClass(lines, i)):
			start := i
			for strings.HasPrefix(strings.TrimSpace(lines[i]), "@") {
				i++
			}
			name := classDefRe.FindStringSubmatch(strings.TrimSpace(lines[i]))[1]
			i++
			for i < len(lines) && isBlockContinuation(lines[i]) {
				i++
			}
			// Trailing blank lines belong between blocks, not inside one.
			end := i
			for end > start && strings.TrimSpace(lines[end-1]) == "" {
				end--
			}
			mod.classes = append(mod.classes, pythonClass{
				name: name,
				body: strings.Join(lines[start:end], "\n"),
			})

		default:
			if trimmed != "" {
				mod.remainder = append(mod.remainder, line)
				i++
				for i < len(lines) && isBlockContinuation(lines[i]) {
					if strings.TrimSpace(lines[i]) != "" {
						mod.remainder = append(mod.remainder, lines[i])
					}
					i++
				}
			} else {
				i++
			}
		}
	}
	return mod
}

func consumeImport(lines []string, i int) ([]string, int) {
	block := []string{lines[i]}
	open := strings.Count(lines[i], "(") - strings.Count(lines[i], ")")
	cont := strings.HasSuffix(strings.TrimSpace(lines[i]), "\\")
	i++
	for i < len(lines) && (open > 0 || cont) {
		block = append(block, lines[i])
		open += strings.Count(lines[i], "(") - strings.Count(lines[i], ")")
		cont = strings.HasSuffix(strings.TrimSpace(lines[i]), "\\")
		i++
	}
	return block, i
}

func isDecoratorBeforeClass(lines []string, i int) bool {
	if !strings.HasPrefix(strings.TrimSpace(lines[i]), "@") {
		return false
	}
	for j := i; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if strings.HasPrefix(trimmed, "@") {
			continue
		}
		return classDefRe.MatchString(trimmed)
	}
	return false
}

func isBlockContinuation(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	return line[0] == ' ' || line[0] == '\t'
}

func buildInit(mod *pythonModule) string {
	var b strings.Builder
	for _, class := range mod.classes {
		fmt.Fprintf(&b, "from .%s import %s\n", camelToSnake(class.name), class.name)
	}
	if len(mod.remainder) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(mod.imports, "\n"))
		if len(mod.imports) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(mod.remainder, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\n__all__ = [\n")
	for _, class := range mod.classes {
		fmt.Fprintf(&b, "    %q,\n", class.name)
	}
	b.WriteString("]\n")
	return b.String()
}

func camelToSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (unicode.IsUpper(runes[i-1]) && nextLower)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (t *splitModuleClasses) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "split_module_classes",
		Description: "Split a Python module into a package with one file per top-level class and a re-exporting __init__.py",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Python module path, relative to the workspace"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *splitModuleClasses) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "split_module_classes", Version: "1.0.0", Category: "refactoring", Writing: true}
}
