package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI implements Classifier and Summarizer using the Claude CLI
// binary. It shells out with --print and parses the output; classification
// responses are requested as strict JSON.
type ClaudeCLI struct {
	path    string
	model   string
	timeout time.Duration
	retry   RetryConfig
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a new Claude CLI client.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 2 * time.Minute,
		retry:   DefaultRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithModel sets the model.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// WithRetryConfig sets the retry policy for CLI invocations.
func WithRetryConfig(cfg RetryConfig) ClaudeOption {
	return func(c *ClaudeCLI) { c.retry = cfg }
}

const classifySystemPrompt = `You classify operations requests for an on-call assistant.
Respond with a single JSON object and nothing else:
{"workflow_class":"QUERY|ACTION|INCIDENT","confidence":0.0,"reasoning":"...",` +
	`"required_sources":{"metrics":false,"logs":false,"alerts":false},"complexity_estimate":"low|medium|high"}`

// Classify implements Classifier. It fails closed: either a recognized
// classification is returned or an error; the caller owns the
// default-ACTION fallback policy.
func (c *ClaudeCLI) Classify(ctx context.Context, text string) (Classification, error) {
	out, err := WithRetry(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.invoke(ctx, classifySystemPrompt, text)
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	cls, err := ParseClassification(out)
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return cls, nil
}

const summarizeSystemPrompt = `You are an operations assistant. Synthesize the collected monitoring data
into a single coherent answer for the operator. If any sources failed or data was reduced,
say so explicitly. Be concrete and cite the data you used.`

// Summarize implements Summarizer.
func (c *ClaudeCLI) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	prompt, err := buildSummarizePrompt(req)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	out, err := WithRetry(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.invoke(ctx, summarizeSystemPrompt, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("summarize: empty response")
	}
	return strings.TrimSpace(out), nil
}

// invoke runs the claude binary with a single prompt and returns stdout.
func (c *ClaudeCLI) invoke(ctx context.Context, system, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"--print"}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, c.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errMsg := stderr.String()
		wrapped := fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
		if isRetryableMessage(errMsg) {
			return "", Transient("claude", wrapped)
		}
		return "", fmt.Errorf("claude: %w", wrapped)
	}

	return stdout.String(), nil
}

// ParseClassification extracts a Classification from model output.
// Tolerates surrounding prose by locating the first JSON object, but
// rejects unknown workflow classes.
func ParseClassification(out string) (Classification, error) {
	raw := extractJSONObject(out)
	if raw == "" {
		return Classification{}, fmt.Errorf("no JSON object in output")
	}

	var cls Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}

	cls.Class = WorkflowClass(strings.ToUpper(string(cls.Class)))
	if !cls.Class.Valid() {
		return Classification{}, fmt.Errorf("unknown workflow class %q", cls.Class)
	}
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	return cls, nil
}

// extractJSONObject returns the first balanced {...} block in s.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// buildSummarizePrompt renders the synthesis request as a prompt.
func buildSummarizePrompt(req SummarizeRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Operator request: %s\n", req.RawInput)
	if req.EnhancedInput != "" && req.EnhancedInput != req.RawInput {
		fmt.Fprintf(&b, "Enhanced request: %s\n", req.EnhancedInput)
	}
	fmt.Fprintf(&b, "Workflow class: %s\n", req.Class)

	if len(req.MemoryInstructions) > 0 {
		b.WriteString("\nOperator guidance from memory:\n")
		for _, ins := range req.MemoryInstructions {
			fmt.Fprintf(&b, "- %s\n", ins)
		}
	}

	if len(req.Collected) > 0 {
		b.WriteString("\nCollected data:\n")
		data, err := json.MarshalIndent(req.Collected, "", "  ")
		if err != nil {
			return "", err
		}
		b.Write(data)
		b.WriteString("\n")
	}

	if len(req.Documents) > 0 {
		b.WriteString("\nRelevant documentation:\n")
		for _, doc := range req.Documents {
			fmt.Fprintf(&b, "--- (score %.2f)\n%s\n", doc.Score, doc.Content)
		}
	}

	if len(req.FailedSources) > 0 {
		b.WriteString("\nSources that failed to collect: ")
		for i, src := range req.FailedSources {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(string(src))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// isRetryableMessage checks if an error message indicates a transient error.
func isRetryableMessage(errMsg string) bool {
	errLower := strings.ToLower(errMsg)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "overloaded") ||
		strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "529")
}
