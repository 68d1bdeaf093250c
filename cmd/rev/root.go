package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rev/internal/config"
	"rev/internal/logging"
	"rev/internal/memory"
	"rev/internal/observability"
	"rev/internal/orchestrator"
	"rev/internal/router"
	"rev/internal/tools/builtin"
	"rev/internal/toolregistry"
	"rev/internal/verifier"
	"rev/internal/workspace"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// errRunFailed signals a completed but unsuccessful run; the details were
// already printed, so main only sets the exit code.
var errRunFailed = errors.New("run failed")

func newRootCmd() *cobra.Command {
	var (
		workspaceFlag string
		readOnly      bool
		resume        bool
		execution     string
		maxSteps      int
		debug         bool
		tdd           bool
	)

	cmd := &cobra.Command{
		Use:          "rev [request]",
		Short:        "Autonomous coding agent: plan, execute, verify, replan",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")

			// Secrets like REV_API_KEY commonly live in a .env next to the
			// invocation; absence is not an error.
			_ = godotenv.Load()

			root, err := filepath.Abs(workspaceFlag)
			if err != nil {
				return err
			}
			settings, err := config.Load(root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("read-only") {
				settings.ReadOnly = readOnly
			}
			if cmd.Flags().Changed("execution") {
				settings.Execution = execution
			}
			if cmd.Flags().Changed("max-steps") {
				settings.StepCap = maxSteps
				settings.MaxIterations = maxSteps
			}
			if cmd.Flags().Changed("tdd") {
				settings.TDDEnabled = tdd
			}
			if debug || settings.Debug {
				logging.SetDefaultLevel(logging.LevelDebug)
			}

			return run(cmd, root, request, settings, resume)
		},
	}

	cmd.Flags().StringVarP(&workspaceFlag, "workspace", "w", ".", "workspace root directory")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "never modify files; mutating tasks become reviews")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last session checkpoint")
	cmd.Flags().StringVar(&execution, "execution", config.ExecutionSubAgent, "execution mode: linear or sub-agent")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "cap on loop iterations")
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose logging")
	cmd.Flags().BoolVar(&tdd, "tdd", false, "enforce red-green test discipline")
	return cmd
}

func run(cmd *cobra.Command, root, request string, settings *config.Settings, resume bool) error {
	resolver, err := workspace.NewResolver(root)
	if err != nil {
		return err
	}
	registry := toolregistry.NewRegistry()
	if err := builtin.RegisterAll(registry, builtin.FileToolConfig{Resolver: resolver}); err != nil {
		return err
	}
	dispatcher := toolregistry.NewDispatcher(toolregistry.DispatcherConfig{
		Registry:    registry,
		Logger:      logging.NewComponentLogger("tools"),
		ArtifactDir: filepath.Join(root, ".rev", "artifacts"),
	})

	modeCfg := settings.ApplyValidation(router.Classify(request, repoStatsFor(root)))

	orch := orchestrator.New(orchestrator.Config{
		LLM:        newChatClient(settings.BaseURL, settings.APIKey, settings.Model),
		Registry:   registry,
		Dispatcher: dispatcher,
		Resolver:   resolver,
		Runner:     &verifier.ExecRunner{},
		Logger:     logging.NewComponentLogger("rev"),
		Memory:     memory.NewStore(root),
		Metrics:    observability.NewMetrics(nil),
		Mode:       modeCfg,

		ReadOnly:      settings.ReadOnly,
		TDDEnabled:    settings.TDDEnabled,
		Resume:        resume,
		Execution:     settings.Execution,
		MaxIterations: settings.MaxIterations,
		Caps: orchestrator.Caps{
			Tokens:    settings.TokenCap,
			Steps:     settings.StepCap,
			Wallclock: settings.WallclockCap,
		},
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		orch.Interrupt()
	}()

	res := orch.Run(cmd.Context(), request)
	printResult(cmd.OutOrStdout(), res)
	if !res.Success {
		return errRunFailed
	}
	return nil
}

func printResult(w io.Writer, res *orchestrator.Result) {
	switch {
	case res.Success:
		fmt.Fprintln(w, green(fmt.Sprintf("completed in %d iteration(s)", res.Iterations)))
	case res.Interrupted:
		fmt.Fprintln(w, yellow("interrupted"))
	default:
		fmt.Fprintln(w, red(fmt.Sprintf("failed in phase %s", res.Phase)))
	}
	for _, msg := range res.Errors {
		fmt.Fprintln(w, red("  "+msg))
	}
	for _, insight := range res.Insights {
		fmt.Fprintln(w, gray("  hint: "+insight))
	}
	fmt.Fprintln(w, gray(fmt.Sprintf("  %d tokens, %d steps, %s",
		res.TokensUsed, res.Steps, res.Elapsed.Round(10*time.Millisecond))))
}

var statsSkipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".rev":         true,
	".venv":        true,
}

const statsFileCap = 2000

// repoStatsFor collects the rough statistics the router needs. The walk is
// capped; classification only cares about small-vs-large.
func repoStatsFor(root string) router.RepoStats {
	stats := router.RepoStats{}
	langs := map[string]bool{}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if statsSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		stats.FileCount++
		switch filepath.Ext(d.Name()) {
		case ".py":
			langs["python"] = true
		case ".go":
			langs["go"] = true
		case ".js", ".jsx", ".ts", ".tsx":
			langs["node"] = true
		case ".rs":
			langs["rust"] = true
		}
		if stats.FileCount >= statsFileCap {
			return fs.SkipAll
		}
		return nil
	})

	for lang := range langs {
		stats.Languages = append(stats.Languages, lang)
	}
	sort.Strings(stats.Languages)
	return stats
}
