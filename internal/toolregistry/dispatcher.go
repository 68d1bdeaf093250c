package toolregistry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"rev/internal/agent/ports"
	"rev/internal/jsonx"
	"rev/internal/logging"
	"rev/internal/toolerr"
)

const (
	// DefaultTruncateLimit bounds textual tool output fed back to the LLM.
	DefaultTruncateLimit = 16 * 1024

	truncationMarker = "\n...[output truncated, %d bytes omitted; full output at %s]"
)

// LastCall records the most recent tool invocation for a task. The verifier
// falls back to it when the agent's returned payload is ambiguous.
type LastCall struct {
	Tool   string
	Args   map[string]any
	Result *ports.ToolResult
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry      *Registry
	Logger        logging.Logger
	TruncateLimit int
	// ArtifactDir receives full outputs that were truncated for transport.
	// Empty disables spilling.
	ArtifactDir string
}

// Dispatcher validates, normalizes, and executes tool calls. One dispatcher
// serves one request; concurrent calls serialize behind its mutex.
type Dispatcher struct {
	registry      *Registry
	logger        logging.Logger
	truncateLimit int
	artifactDir   string

	mu        sync.Mutex
	lastCalls map[string]*LastCall
	seq       int
}

// NewDispatcher builds a dispatcher over a registry.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	limit := cfg.TruncateLimit
	if limit <= 0 {
		limit = DefaultTruncateLimit
	}
	return &Dispatcher{
		registry:      cfg.Registry,
		logger:        logging.OrNop(cfg.Logger),
		truncateLimit: limit,
		artifactDir:   cfg.ArtifactDir,
		lastCalls:     make(map[string]*LastCall),
	}
}

// Execute runs one tool call and returns the result serialized to JSON.
// Tool failures are carried in-band as {"error": ..., "error_type": ...};
// they never unwind into the loop.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, taskID string) string {
	result := d.ExecuteCall(ctx, ports.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
		TaskID:    taskID,
	})
	encoded, err := jsonx.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"error_type":%q}`, err.Error(), toolerr.Unknown)
	}
	return string(encoded)
}

// ExecuteCall is the structured variant of Execute.
func (d *Dispatcher) ExecuteCall(ctx context.Context, call ports.ToolCall) *ports.ToolResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	tool, err := d.registry.Get(call.Name)
	if err != nil {
		return d.failure(call, toolerr.New(toolerr.NotFound, call.Name, err.Error()))
	}

	call.Arguments = NormalizeArgs(call.Arguments, call.Name)

	if schema := d.registry.schema(call.Name); schema != nil {
		if err := schema.Validate(anyMap(call.Arguments)); err != nil {
			verr := toolerr.New(toolerr.ValidationError, call.Name,
				fmt.Sprintf("arguments rejected by schema: %v", err))
			return d.failure(call, verr)
		}
	}

	d.logger.Debug("dispatch %s args=%v", call.Name, call.Arguments)
	result, execErr := tool.Execute(ctx, call)
	if execErr != nil {
		classified := toolerr.Classify(execErr, call.Name, execErr.Error())
		return d.failure(call, classified)
	}
	if result == nil {
		result = &ports.ToolResult{CallID: call.ID}
	}
	if result.Error != nil && result.ErrorType == "" {
		result.ErrorType = string(toolerr.Classify(result.Error, call.Name, result.Error.Error()).Kind)
	}

	d.truncate(call, result)
	d.record(call, result)
	return result
}

// LastCallFor returns the most recent call recorded for a task, or nil.
func (d *Dispatcher) LastCallFor(taskID string) *LastCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCalls[taskID]
}

func (d *Dispatcher) failure(call ports.ToolCall, terr *toolerr.Error) *ports.ToolResult {
	d.logger.Warn("tool %s failed: %v", call.Name, terr)
	result := &ports.ToolResult{
		CallID:    call.ID,
		Error:     terr,
		ErrorType: string(terr.Kind),
		Metadata: map[string]any{
			"recoverable":    terr.Recoverable(),
			"recovery_steps": terr.RecoverySteps,
		},
	}
	d.record(call, result)
	return result
}

func (d *Dispatcher) truncate(call ports.ToolCall, result *ports.ToolResult) {
	if len(result.Content) <= d.truncateLimit {
		return
	}
	omitted := len(result.Content) - d.truncateLimit
	ref := d.spillArtifact(call, result.Content)
	if ref == "" {
		ref = "(artifact persistence disabled)"
	}
	result.ArtifactRef = ref
	result.Content = result.Content[:d.truncateLimit] + fmt.Sprintf(truncationMarker, omitted, ref)
	result.Truncated = true
}

func (d *Dispatcher) spillArtifact(call ports.ToolCall, content string) string {
	if d.artifactDir == "" {
		return ""
	}
	d.seq++
	taskID := call.TaskID
	if taskID == "" {
		taskID = "adhoc"
	}
	dir := filepath.Join(d.artifactDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Warn("artifact dir: %v", err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%04d-%s.txt", d.seq, call.Name))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		d.logger.Warn("artifact write: %v", err)
		return ""
	}
	return path
}

func (d *Dispatcher) record(call ports.ToolCall, result *ports.ToolResult) {
	taskID := call.TaskID
	if taskID == "" {
		return
	}
	d.lastCalls[taskID] = &LastCall{Tool: call.Name, Args: call.Arguments, Result: result}
}

// anyMap rebuilds the map with plain any values so the schema validator sees
// JSON-compatible types.
func anyMap(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
