package inference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/localpilot/internal/tlsutil"
	"github.com/BaSui01/localpilot/llm/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// ProbeTimeout bounds each endpoint check.
const ProbeTimeout = 3 * time.Second

// ProbeResult is the outcome of checking one candidate endpoint.
type ProbeResult struct {
	URL        string        `json:"url" yaml:"url"`
	Success    bool          `json:"success" yaml:"success"`
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Models     []string      `json:"models,omitempty" yaml:"models,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProbeReport collects all results; Best is the fastest successful endpoint.
type ProbeReport struct {
	Results   []ProbeResult `json:"results" yaml:"results"`
	Best      *ProbeResult  `json:"best,omitempty" yaml:"best,omitempty"`
	CheckedAt time.Time     `json:"checked_at" yaml:"checked_at"`
}

// Candidates 返回待探测的 API 根地址：配置地址、OPENAI_BASE_URL、以及 localhost 常用端口
func (c *Client) Candidates() []string {
	out := []string{c.cfg.APIURL()}
	if env := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); env != "" {
		out = append(out, env)
	}
	for _, port := range c.cfg.ProbePorts {
		out = append(out, fmt.Sprintf("http://localhost:%d/v1", port))
	}
	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, u := range out {
		key := strings.TrimRight(u, "/")
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, key)
		}
	}
	return uniq
}

// Probe 并发检查每个候选地址的 /models 端点
func (c *Client) Probe(ctx context.Context, candidates []string) ProbeReport {
	if len(candidates) == 0 {
		candidates = c.Candidates()
	}
	results := make([]ProbeResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			results[i] = c.probeOne(gctx, candidate)
			return nil
		})
	}
	_ = g.Wait()

	report := ProbeReport{Results: results, CheckedAt: time.Now().UTC()}
	for i := range results {
		r := &results[i]
		if r.Success && (report.Best == nil || r.Duration < report.Best.Duration) {
			report.Best = r
		}
		if r.Success {
			c.logger.Info("endpoint reachable", zap.String("url", r.URL), zap.Duration("duration", r.Duration), zap.Strings("models", r.Models))
		} else {
			c.logger.Debug("endpoint unreachable", zap.String("url", r.URL), zap.String("error", r.Error))
		}
	}
	return report
}

func (c *Client) probeOne(ctx context.Context, apiURL string) ProbeResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	res := ProbeResult{URL: apiURL}
	client := tlsutil.ClientFor(apiURL, ProbeTimeout)
	models, err := providers.FetchModels(ctx, client, apiURL, c.cfg.APIKey, ProviderName, providers.Bearer)
	res.Duration = time.Since(start)
	if err != nil {
		mapped := c.mapError(err, "")
		res.Error = mapped.Error()
		if e, ok := asLLMStatus(err); ok {
			res.StatusCode = e
		}
		return res
	}
	res.Success = true
	res.StatusCode = 200
	for _, m := range models {
		res.Models = append(res.Models, m.ID)
	}
	slices.Sort(res.Models)
	return res
}

// SaveProbeReport writes the best endpoint to a YAML file that can be merged
// into the inference section of the config.
func SaveProbeReport(path string, report ProbeReport) error {
	if report.Best == nil {
		return fmt.Errorf("no reachable endpoint to save")
	}
	base := strings.TrimSuffix(strings.TrimRight(report.Best.URL, "/"), "/v1")
	doc := map[string]any{
		"inference": map[string]any{
			"base_url": base,
			"api_path": "/v1",
		},
		"detected": map[string]any{
			"checked_at":       report.CheckedAt.Format(time.RFC3339),
			"available_models": report.Best.Models,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode probe report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
