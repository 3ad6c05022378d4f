package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/automation/basic"
	"github.com/BaSui01/localpilot/config"
	"github.com/BaSui01/localpilot/inference"
	"github.com/BaSui01/localpilot/types"
)

// SelftestPrompt 是自检使用的固定指令
const SelftestPrompt = "Go to example.com and take a screenshot"

// errRunFailed 表示自动化运行返回了失败结果，详情已输出
var errRunFailed = errors.New("automation failed")

// cliEnv 是一次命令行调用的配置、日志与组件
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	comps  *components
}

// setupCLI 加载配置并创建组件。命令行模式下日志写 stderr，stdout 只输出结果。
func setupCLI(flags *rootFlags) (*cliEnv, error) {
	cfg, _, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.OutputPaths = make([]string, 0, len(cfg.Log.OutputPaths))
	for _, p := range cfg.Log.OutputPaths {
		if p == "stdout" {
			p = "stderr"
		}
		logCfg.OutputPaths = append(logCfg.OutputPaths, p)
	}
	logger, _ := initLogger(logCfg)
	return &cliEnv{cfg: cfg, logger: logger, comps: buildComponents(cfg, logger, nil)}, nil
}

func (e *cliEnv) close() { _ = e.logger.Sync() }

// signalContext 在 Ctrl-C / SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runFlags 覆盖配置中的浏览器运行选项
type runFlags struct {
	headless bool
	slowMo   time.Duration
	timeout  time.Duration
	json     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.headless, "headless", false, "Run the browser without a window")
	cmd.Flags().DurationVar(&f.slowMo, "slow-mo", 0, "Delay between browser actions")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Navigation timeout (0 keeps the default)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the result as JSON")
}

// options 以配置为基础，只覆盖显式给出的参数
func (f *runFlags) options(cmd *cobra.Command, cfg *config.Config) automation.Options {
	opts := cfg.Automation.Options(cfg.Browser)
	if cmd.Flags().Changed("headless") {
		opts.Headless = f.headless
	}
	if cmd.Flags().Changed("slow-mo") {
		opts.SlowMo = f.slowMo
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = f.timeout
	}
	return opts
}

// withHistory 打开历史库并把它挂到编排器上，返回关闭函数
func (e *cliEnv) withHistory() ([]automation.Option, func()) {
	store := openHistory(e.cfg.History, e.logger, nil)
	if store == nil {
		return nil, func() {}
	}
	return []automation.Option{automation.WithRecorder(store)}, func() { _ = store.Close() }
}

// =============================================================================
// 🤖 自动化命令
// =============================================================================

func newDemoCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Open the demo pages, take screenshots and close the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			extra, closeHistory := env.withHistory()
			defer closeHistory()
			orch := env.comps.orchestrator(extra...)

			res := orch.Start(ctx, rf.options(cmd, env.cfg))
			printErr := printResult(cmd.OutOrStdout(), res, rf.json)

			if res.Success && hold > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Keeping the browser open for %s (Ctrl-C to close)\n", hold)
				select {
				case <-ctx.Done():
				case <-time.After(hold):
				}
			}
			if stop := orch.Stop(context.WithoutCancel(ctx)); !stop.Success {
				env.logger.Warn("failed to close browser session", zap.String("error", stop.Error))
			}
			return printErr
		},
	}
	rf.register(cmd)
	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep the browser open this long before closing it")
	return cmd
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a natural-language browser instruction",
		Example: `  localpilot run "go to github.com"
  localpilot run --headless "search for golang"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			extra, closeHistory := env.withHistory()
			defer closeHistory()
			orch := env.comps.orchestrator(extra...)

			res := orch.RunPrompt(ctx, strings.Join(args, " "), rf.options(cmd, env.cfg))
			if stop := orch.Stop(context.WithoutCancel(ctx)); !stop.Success {
				env.logger.Warn("failed to close browser session", zap.String("error", stop.Error))
			}
			return printResult(cmd.OutOrStdout(), res, rf.json)
		},
	}
	rf.register(cmd)
	return cmd
}

func newSelftestCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the basic backend once without the enhanced backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			res := runSelftest(ctx, env.comps.basic, rf.options(cmd, env.cfg), env.logger)
			return printResult(cmd.OutOrStdout(), res, rf.json)
		},
	}
	rf.register(cmd)
	return cmd
}

// runSelftest 直接调用基础后端，不经过编排器与会话
func runSelftest(ctx context.Context, backend automation.Backend, opts automation.Options, logger *zap.Logger) *automation.Result {
	runID := uuid.NewString()
	tr := automation.NewTranscript(runID, nil, logger)
	ctx = automation.WithTranscript(types.WithRunID(ctx, runID), tr)

	res, err := backend.Run(ctx, SelftestPrompt, opts)
	if err != nil || res == nil {
		res = automation.Failed(err)
	}
	if len(res.Output) == 0 {
		res.Output = tr.Lines()
	}
	res.RunID = runID
	res.Backend = basic.Name
	return res.Normalize()
}

// printResult 输出结果；失败时返回 errRunFailed 以设置退出码
func printResult(w io.Writer, res *automation.Result, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else {
		for _, line := range res.Output {
			fmt.Fprintln(w, line)
		}
		if res.Success {
			fmt.Fprintf(w, "\n✓ %s", res.Message)
			if res.Backend != "" {
				fmt.Fprintf(w, " (%s)", res.Backend)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "\n✗ %s", res.Error)
			if res.Code != "" {
				fmt.Fprintf(w, " [%s]", res.Code)
			}
			fmt.Fprintln(w)
		}
		for _, s := range res.Screenshots {
			fmt.Fprintf(w, "  screenshot: %s\n", s)
		}
	}
	if !res.Success {
		return errRunFailed
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 🩺 诊断与推理命令
// =============================================================================

func newDiagnoseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Report whether the enhanced backend can be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return writeJSON(cmd.OutOrStdout(), env.comps.Diagnose(ctx))
		},
	}
}

func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models loaded by the inference server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			models, err := env.comps.client.ListModels(ctx)
			if err != nil {
				return err
			}
			def := env.comps.client.Config().DefaultModel
			for _, m := range models {
				marker := " "
				if m.ID == def {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m.ID)
			}
			return nil
		},
	}
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		req    inference.CompletionRequest
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a single prompt to the inference server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			req.Prompt = strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if !stream {
				c, err := env.comps.client.Complete(ctx, req)
				if err != nil {
					return err
				}
				if c.Model != c.ModelRequested {
					fmt.Fprintf(cmd.ErrOrStderr(), "(model %s is not loaded, answered by %s)\n", c.ModelRequested, c.Model)
				}
				fmt.Fprintln(out, c.Result)
				return nil
			}

			ch, err := env.comps.client.Stream(ctx, req)
			if err != nil {
				return err
			}
			for chunk := range ch {
				if chunk.Err != nil {
					return chunk.Err
				}
				fmt.Fprint(out, chunk.Delta)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "Model id (defaults to the configured model)")
	cmd.Flags().StringVar(&req.System, "system", "", "System prompt")
	cmd.Flags().IntVar(&req.MaxTokens, "max-tokens", 0, "Maximum tokens in the answer")
	cmd.Flags().Float32Var(&req.Temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it is generated")
	return cmd
}

func newProbeCmd(flags *rootFlags) *cobra.Command {
	var (
		save       string
		candidates []string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find a reachable OpenAI-compatible inference endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupCLI(flags)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report := env.comps.client.Probe(ctx, candidates)
			out := cmd.OutOrStdout()
			for _, r := range report.Results {
				if r.Success {
					fmt.Fprintf(out, "✓ %-32s %6s  %s\n", r.URL, r.Duration.Round(time.Millisecond), strings.Join(r.Models, ", "))
				} else {
					fmt.Fprintf(out, "✗ %-32s %s\n", r.URL, r.Error)
				}
			}
			if report.Best == nil {
				return types.NewError(types.ErrConnectivity, "no inference endpoint is reachable")
			}
			fmt.Fprintf(out, "\nBest endpoint: %s\n", report.Best.URL)
			if save != "" {
				if err := inference.SaveProbeReport(save, report); err != nil {
					return err
				}
				fmt.Fprintf(out, "Saved to %s\n", save)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "Write the best endpoint to this YAML file")
	cmd.Flags().StringSliceVar(&candidates, "url", nil, "API roots to check instead of the defaults (e.g. http://localhost:5273/v1)")
	return cmd
}

// =============================================================================
// 🏥 健康检查与版本
// =============================================================================

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth(cmd.Context(), addr, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	return cmd
}

func checkHealth(ctx context.Context, addr string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "localpilot %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
