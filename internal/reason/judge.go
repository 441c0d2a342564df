package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/skeinhq/skein/internal/logging"
)

// TaskBrief is the slice of a task the judge sees.
type TaskBrief struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Phase       string `json:"phase,omitempty"`
}

// Pair is one unordered task pair submitted for judgment.
type Pair struct {
	ID string    `json:"pair_id"`
	A  TaskBrief `json:"task_a"`
	B  TaskBrief `json:"task_b"`
}

// Judgment is the verdict for one pair: whether a dependency exists, which
// way it points, how sure the judge is, and a short justification.
type Judgment struct {
	PairID        string  `json:"pair_id"`
	Depends       bool    `json:"depends"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification,omitempty"`
}

// Judge produces dependency judgments for batches of task pairs.
type Judge interface {
	JudgePairs(ctx context.Context, pairs []Pair) ([]Judgment, error)
}

// AnthropicJudge implements Judge over the Messages API.
type AnthropicJudge struct {
	client    *Client
	maxTokens int64
	log       *logging.Logger
}

func NewAnthropicJudge(client *Client, maxTokens int64, log *logging.Logger) *AnthropicJudge {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if log == nil {
		log = logging.Nop()
	}
	return &AnthropicJudge{client: client, maxTokens: maxTokens, log: log}
}

const judgeSystemPrompt = `You analyze pairs of software engineering tasks and decide, per pair, whether one task must finish before the other can start.

Respond with a JSON array only, no prose. One object per pair:
[{"pair_id": "...", "depends": true, "from": "<dependent task id>", "to": "<prerequisite task id>", "confidence": 0.0, "justification": "one sentence"}]

Set "depends" to false and omit from/to when the tasks can proceed in any order. Confidence is 0.0-1.0. Judge only real execution-order constraints, not thematic similarity.`

// JudgePairs submits one batch and returns the verdicts that line up with a
// submitted pair. Pairs the model skipped are simply absent from the result.
func (j *AnthropicJudge) JudgePairs(ctx context.Context, pairs []Pair) ([]Judgment, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("marshal pairs: %w", err)
	}
	prompt := fmt.Sprintf("Judge these %d task pairs:\n\n%s", len(pairs), payload)

	resp, err := j.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     j.client.Model(),
		MaxTokens: j.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: judgeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge pairs: %w", err)
	}
	j.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	parsed, err := ParseJudgments(text.String())
	if err != nil {
		return nil, err
	}
	return filterJudgments(pairs, parsed, j.log), nil
}

// ParseJudgments extracts the judgment array from a model response that may
// wrap the JSON in prose or code fences.
func ParseJudgments(response string) ([]Judgment, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no valid JSON array found in response (got %d chars): %q",
			len(response), preview)
	}

	var judgments []Judgment
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &judgments); err != nil {
		return nil, fmt.Errorf("unmarshal judgments: %w", err)
	}
	return judgments, nil
}

// filterJudgments drops verdicts that do not line up with a submitted pair
// and clamps confidence into [0, 1].
func filterJudgments(pairs []Pair, judgments []Judgment, log *logging.Logger) []Judgment {
	byID := map[string]Pair{}
	for _, p := range pairs {
		byID[p.ID] = p
	}
	out := make([]Judgment, 0, len(judgments))
	for _, jd := range judgments {
		p, ok := byID[jd.PairID]
		if !ok {
			log.Warn("judgment for unknown pair dropped", "pair_id", jd.PairID)
			continue
		}
		if jd.Confidence < 0 {
			jd.Confidence = 0
		}
		if jd.Confidence > 1 {
			jd.Confidence = 1
		}
		if jd.Depends {
			valid := (jd.From == p.A.ID && jd.To == p.B.ID) ||
				(jd.From == p.B.ID && jd.To == p.A.ID)
			if !valid {
				log.Warn("judgment direction does not match pair, dropped",
					"pair_id", jd.PairID, "from", jd.From, "to", jd.To)
				continue
			}
		}
		out = append(out, jd)
	}
	return out
}
