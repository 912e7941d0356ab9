package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/davidahmann/proctor/internal/backend"
)

type workerWire struct {
	Response   string     `json:"response"`
	Citations  []Citation `json:"citations"`
	Confidence *float64   `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Caveats    []string   `json:"caveats"`
}

// runWorker invokes the Worker capability and decodes its structured
// output. Text that is not valid JSON still produces a usable output at
// reduced confidence rather than failing the run.
func runWorker(ctx context.Context, capability backend.Capability, req Request, revision string) (WorkerOutput, error) {
	text, err := capability.Invoke(ctx, workerSystemPrompt(req.Context), workerPrompt(req, revision), req.Query)
	if err != nil {
		return WorkerOutput{}, err
	}
	return parseWorkerOutput(text), nil
}

func parseWorkerOutput(text string) WorkerOutput {
	raw, ok := extractJSONObject(text)
	if ok {
		var wire workerWire
		if err := json.Unmarshal([]byte(raw), &wire); err == nil && wire.Response != "" {
			confidence := 0.5
			if wire.Confidence != nil {
				confidence = clampConfidence(*wire.Confidence)
			}
			return WorkerOutput{
				Response:   wire.Response,
				Citations:  wire.Citations,
				Confidence: confidence,
				Reasoning:  wire.Reasoning,
				Caveats:    wire.Caveats,
			}
		}
	}
	return WorkerOutput{
		Response:   strings.TrimSpace(text),
		Confidence: 0.5,
		Reasoning:  "fallback: could not parse structured output",
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// extractJSONObject pulls the outermost {...} from model text, tolerating
// prose or code fences around it.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
