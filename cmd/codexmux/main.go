package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	codexsdk "github.com/parallelcodex/codex-sdk-go"
	"github.com/parallelcodex/codex-sdk-go/internal/session"
	"github.com/parallelcodex/codex-sdk-go/internal/worktree"
)

var rootCmd = &cobra.Command{
	Use:   "codexmux",
	Short: "Run parallel Codex sessions over one mcp-server subprocess",
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newToolsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "codexmux: %v\n", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		model      string
		sandbox    string
		codexPath  string
		repo       string
		agentsBase string
		timeout    time.Duration
		verbose    bool
		skipLogin  bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]...",
		Short: "Run one Codex session per prompt, all sharing one subprocess",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			opts := []codexsdk.Option{}
			if model != "" {
				opts = append(opts, codexsdk.WithModel(model))
			}
			if sandbox != "" {
				opts = append(opts, codexsdk.WithSandbox(sandbox))
			}
			if codexPath != "" {
				opts = append(opts, codexsdk.WithCodexPath(codexPath))
			}
			if skipLogin {
				opts = append(opts, codexsdk.WithSkipLoginCheck())
			}
			if verbose {
				logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
				opts = append(opts, codexsdk.WithLogger(logger))
				opts = append(opts, codexsdk.WithStderrCallback(func(line string) {
					fmt.Fprintf(os.Stderr, "codex: %s\n", line)
				}))
			}

			if repo == "" {
				repo = os.Getenv("PARALLEL_CODEX_REPO_ROOT")
			}

			return runPrompts(ctx, args, opts, repo, agentsBase)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Codex model for new sessions")
	cmd.Flags().StringVar(&sandbox, "sandbox", "", "Codex sandbox mode (workspace-write, read-only)")
	cmd.Flags().StringVar(&codexPath, "codex-path", "", "explicit path to the codex binary")
	cmd.Flags().StringVar(&repo, "repo", "", "git repository to create per-session worktrees in")
	cmd.Flags().StringVar(&agentsBase, "agents-base", ".worktrees", "directory for session worktrees, relative to the repo")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for all sessions (0 = none)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol traffic and server stderr")
	cmd.Flags().BoolVar(&skipLogin, "skip-login-check", false, "skip the codex login status probe")

	return cmd
}

// runPrompts starts one session per prompt over a shared client and streams
// events until every session's tool call resolves.
func runPrompts(ctx context.Context, prompts []string, opts []codexsdk.Option, repo, agentsBase string) error {
	client := codexsdk.NewClient()
	if err := client.Start(ctx, opts...); err != nil {
		return err
	}
	defer client.Stop(context.Background())

	if _, err := client.Initialize(ctx); err != nil {
		return err
	}

	if repo != "" && !filepath.IsAbs(agentsBase) {
		agentsBase = filepath.Join(repo, agentsBase)
	}

	sessions := session.NewManager()

	events, err := client.GlobalEvents()
	if err != nil {
		return err
	}

	tracker, err := client.Tracker()
	if err != nil {
		return err
	}

	printCtx, stopPrinting := context.WithCancel(ctx)
	defer stopPrinting()

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(printCtx, events, sessions)
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	for i, prompt := range prompts {
		model := sessions.Create(fmt.Sprintf("session-%d", i+1))

		var config map[string]any
		if repo != "" {
			wt, err := worktree.Ensure(repo, agentsBase, model.Name, worktree.BranchName(model.Name))
			if err != nil {
				return err
			}
			model.BranchName = wt.BranchName
			model.WorkspacePath = wt.Path
			config = map[string]any{"workspace_path": wt.Path}
		}

		prompt := prompt
		group.Go(func() error {
			call, err := client.CallCodex(groupCtx, prompt, config)
			if err != nil {
				return fmt.Errorf("%s: %w", model.Name, err)
			}

			result, err := call.Wait(groupCtx)
			if err != nil {
				return fmt.Errorf("%s: %w", model.Name, err)
			}

			if timeline, ok := tracker.GetTimeline(call.StringID()); ok && timeline.SessionID != "" {
				sessions.BindSessionID(model.Name, timeline.SessionID)
			}

			fmt.Printf("[%s] done: %s\n", model.Name, summarizeResult(result))

			return nil
		})
	}

	err = group.Wait()

	stopPrinting()
	<-printerDone

	// Render anything still queued after the printer stopped.
	for {
		ev, ok := events.TryNext()
		if !ok {
			break
		}

		printEvent(ev, sessions)
	}

	return err
}

// printEvents renders global events until the stream closes.
func printEvents(ctx context.Context, events *codexsdk.EventQueue, sessions *session.Manager) {
	for {
		ev, err := events.Next(ctx)
		if err != nil {
			return
		}

		printEvent(ev, sessions)
	}
}

func printEvent(ev codexsdk.CodexEvent, sessions *session.Manager) {
	label := "-"
	if ev.SessionID != "" {
		label = ev.SessionID
		if model, ok := sessions.FindBySessionID(ev.SessionID); ok {
			label = model.Name
		}
	}

	switch ev.Type {
	case codexsdk.EventResponse:
		fmt.Printf("[%s] response id=%s\n", label, ev.RelatedRequestID)
	case codexsdk.EventError:
		fmt.Printf("[%s] error: %s\n", label, compactJSON(ev.Raw))
	default:
		method, _ := ev.Raw["method"].(string)
		fmt.Printf("[%s] %s %s\n", label, ev.Type, method)
	}
}

// summarizeResult renders a tool call result on one line.
func summarizeResult(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return compactJSON(result)
	}

	// MCP tool results carry a content array of text blocks.
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		return compactJSON(result)
	}

	block, ok := content[0].(map[string]any)
	if !ok {
		return compactJSON(result)
	}

	if text, ok := block["text"].(string); ok {
		return text
	}

	return compactJSON(result)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}

func newToolsCmd() *cobra.Command {
	var (
		codexPath string
		skipLogin bool
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools advertised by codex mcp-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			opts := []codexsdk.Option{}
			if codexPath != "" {
				opts = append(opts, codexsdk.WithCodexPath(codexPath))
			}
			if skipLogin {
				opts = append(opts, codexsdk.WithSkipLoginCheck())
			}

			client := codexsdk.NewClient()
			if err := client.Start(ctx, opts...); err != nil {
				return err
			}
			defer client.Stop(context.Background())

			if _, err := client.Initialize(ctx); err != nil {
				return err
			}

			tools, err := client.ListTools(ctx)
			if err != nil {
				return err
			}

			for _, tool := range tools {
				fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&codexPath, "codex-path", "", "explicit path to the codex binary")
	cmd.Flags().BoolVar(&skipLogin, "skip-login-check", false, "skip the codex login status probe")

	return cmd
}
