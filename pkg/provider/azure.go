package provider

// AzureEngine runs the react-style tool-calling loop for one conversation
// turn against an Azure OpenAI deployment.  The loop alternates between
// chat completions and tool invocations until the model stops requesting
// tools, then performs one more completion with a strict JSON-schema
// response format to extract the structured status+message the caller
// reduces into a task outcome.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/theapemachine/supabase-a2a/pkg/tools"
)

type StepKind string

const (
	// StepToolCall signals an outbound tool invocation is about to run.
	StepToolCall StepKind = "tool_call"
	// StepToolResult signals a tool result arrived.
	StepToolResult StepKind = "tool_result"
	// StepAssistant carries a plain assistant message.
	StepAssistant StepKind = "assistant"
)

// Step is one intermediate notification emitted while a turn is in
// progress.  Steps are transient and never persisted.
type Step struct {
	Kind     StepKind
	ToolName string
	Content  string
}

// Turn is the terminal result of one reasoning turn.  History carries the
// full message sequence (excluding the system prompt) for checkpointing;
// Structured is the raw JSON of the extracted status+message object, or nil
// when extraction failed.
type Turn struct {
	History    []openai.ChatCompletionMessageParamUnion
	FinalText  string
	Structured json.RawMessage
}

type Config struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string

	SystemPrompt string
	FormatPrompt string

	// ResponseSchema is the strict JSON schema for the structured terminal
	// response.
	ResponseSchema     map[string]any
	ResponseSchemaName string

	Temperature float64
	MaxSteps    int
}

type AzureEngine struct {
	client *openai.Client
	conf   Config
	params []openai.ChatCompletionToolParam
	byName map[string]tools.Descriptor
}

func NewAzureEngine(conf Config, descriptors []tools.Descriptor) *AzureEngine {
	if conf.MaxSteps <= 0 {
		conf.MaxSteps = 25
	}

	client := openai.NewClient(
		azure.WithEndpoint(conf.Endpoint, conf.APIVersion),
		azure.WithAPIKey(conf.APIKey),
	)

	byName := make(map[string]tools.Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		byName[descriptor.Tool.Name] = descriptor
	}

	return &AzureEngine{
		client: &client,
		conf:   conf,
		params: convertTools(descriptors),
		byName: byName,
	}
}

// RunTurn executes one turn.  history is the checkpointed message sequence
// from a previous turn (or nil); emit receives one Step per intermediate
// message.  Tool invocation failures are reported back to the model as the
// tool result and the loop continues; only completion failures abort the
// turn.
func (e *AzureEngine) RunTurn(
	ctx context.Context, history any, query string, emit func(Step),
) (*Turn, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(e.conf.SystemPrompt),
	}

	prior, _ := history.([]openai.ChatCompletionMessageParamUnion)
	messages = append(messages, prior...)
	messages = append(messages, openai.UserMessage(query))

	finalText := ""

	for step := 0; step < e.conf.MaxSteps; step++ {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(e.conf.Deployment),
			Messages:    messages,
			Temperature: openai.Float(e.conf.Temperature),
		}
		if len(e.params) > 0 {
			params.Tools = e.params
		}

		completion, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}

		assistant := completion.Choices[0].Message
		messages = append(messages, assistant.ToParam())

		if len(assistant.ToolCalls) == 0 {
			finalText = assistant.Content
			if emit != nil {
				emit(Step{Kind: StepAssistant, Content: finalText})
			}
			break
		}

		for _, toolCall := range assistant.ToolCalls {
			if emit != nil {
				emit(Step{
					Kind:     StepToolCall,
					ToolName: toolCall.Function.Name,
					Content:  toolCall.Function.Arguments,
				})
			}

			result, err := e.invoke(ctx, toolCall.Function.Name, toolCall.Function.Arguments)
			if err != nil {
				// Feed the failure back as the tool result so the model can
				// recover or report a structured error status.
				result = fmt.Sprintf("Error executing tool %s: %v", toolCall.Function.Name, err)
				log.Warn("tool call failed, result forwarded to model",
					"toolName", toolCall.Function.Name, "error", err,
				)
			}

			if emit != nil {
				emit(Step{
					Kind:     StepToolResult,
					ToolName: toolCall.Function.Name,
					Content:  result,
				})
			}

			messages = append(messages, openai.ToolMessage(result, toolCall.ID))
		}
	}

	turn := &Turn{
		// Drop the leading system message: checkpoints carry conversation
		// only, the system prompt is re-applied every turn.
		History:   messages[1:],
		FinalText: finalText,
	}

	turn.Structured = e.extractStructured(ctx, messages)

	return turn, nil
}

// extractStructured asks the model to restate the turn outcome in the
// configured response schema.  A failure here is not an error: the caller
// falls back to its fixed response when Structured is nil.
func (e *AzureEngine) extractStructured(
	ctx context.Context, messages []openai.ChatCompletionMessageParamUnion,
) json.RawMessage {
	if e.conf.ResponseSchema == nil {
		return nil
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.conf.Deployment),
		Messages:    append(messages, openai.SystemMessage(e.conf.FormatPrompt)),
		Temperature: openai.Float(e.conf.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        e.conf.ResponseSchemaName,
					Description: openai.String("Respond to the user in this format."),
					Schema:      e.conf.ResponseSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Warn("structured response extraction failed", "error", err)
		return nil
	}
	if len(completion.Choices) == 0 {
		log.Warn("structured response extraction returned no choices")
		return nil
	}

	return json.RawMessage(completion.Choices[0].Message.Content)
}

func (e *AzureEngine) invoke(ctx context.Context, name string, rawArgs string) (string, error) {
	descriptor, ok := e.byName[name]
	if !ok {
		return "", fmt.Errorf("model requested unknown tool: %s", name)
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("failed to unmarshal tool arguments '%s': %w", rawArgs, err)
		}
	}

	log.Info("calling tool", "toolName", name, "args", args)
	return descriptor.Invoke(ctx, args)
}

func convertTools(descriptors []tools.Descriptor) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(descriptors))

	for _, descriptor := range descriptors {
		tool := descriptor.Tool

		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       tool.InputSchema.Type,
					"properties": tool.InputSchema.Properties,
					"required":   tool.InputSchema.Required,
				}),
			},
		})
	}

	return out
}
