package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/logger"
)

type RecoveryHint struct {
	KeyInsight    string   `json:"key_insight" jsonschema_description:"The one idea the learner most likely lost, in a single sentence"`
	PracticeSteps []string `json:"practice_steps" jsonschema_description:"Two to four concrete practice steps for today's intensive review"`
}

// HintRequest describes one forgotten problem.
type HintRequest struct {
	ProblemTitle   string
	Patterns       []string
	ForgottenStage int
	Notes          string
	Mistakes       []string
}

// strictSchema reflects T into the subset strict structured outputs accept:
// definitions inlined and no additional properties.
func strictSchema[T any]() any {
	r := jsonschema.Reflector{DoNotReference: true, AllowAdditionalProperties: false}
	return r.Reflect(new(T))
}

var recoveryHintSchema = strictSchema[RecoveryHint]()

const systemPrompt = "You are a coding interview coach. A learner practising LeetCode with spaced repetition just forgot how to solve a problem. Give a short, specific recovery hint without writing the full solution."

type HintGenerator struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

func NewHintGenerator(apiKey, model string, log *logger.Logger) *HintGenerator {
	return &HintGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		log:    log.With("component", "HintGenerator"),
	}
}

func hintPrompt(req HintRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", req.ProblemTitle)
	if len(req.Patterns) > 0 {
		fmt.Fprintf(&b, "Patterns: %s\n", strings.Join(req.Patterns, ", "))
	}
	fmt.Fprintf(&b, "Forgotten at review stage %d\n", req.ForgottenStage)
	if req.Notes != "" {
		fmt.Fprintf(&b, "Learner notes: %s\n", req.Notes)
	}
	for _, m := range req.Mistakes {
		fmt.Fprintf(&b, "Mistake: %s\n", m)
	}
	return b.String()
}

func parseHint(content string) (*RecoveryHint, error) {
	hint := RecoveryHint{}
	if err := json.Unmarshal([]byte(content), &hint); err != nil {
		return nil, errors.Wrap(err, "parsing llm response")
	}
	if hint.KeyInsight == "" {
		return nil, errors.New("llm response has no key insight")
	}
	return &hint, nil
}

func (g *HintGenerator) GenerateRecoveryHint(ctx context.Context, req HintRequest) (*RecoveryHint, error) {
	g.log.Debug("Generating recovery hint", "problem", req.ProblemTitle, "stage", req.ForgottenStage)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        openai.F("recovery_hint"),
		Description: openai.F("Recovery hint for a forgotten coding problem"),
		Schema:      openai.F(recoveryHintSchema),
		Strict:      openai.Bool(true),
	}

	chat, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(hintPrompt(req)),
		}),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type:       openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(schemaParam),
			},
		),
		// Only certain models can perform structured outputs
		Model: openai.F(openai.ChatModel(g.model)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "requesting recovery hint")
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	return parseHint(chat.Choices[0].Message.Content)
}
