package ai

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Profile is a model configuration used by one or more operations.
type Profile struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	TopP        float32 `json:"topP,omitempty"`

	// Reasoning models take no system message and only temperature 1.
	Reasoning bool `json:"reasoning"`

	// Family is the model id fragment ValidateConnection looks for.
	Family string `json:"-"`
}

// Model profiles.
var (
	AnalysisProfile   = Profile{Model: "gpt-5", Temperature: 0.3, MaxTokens: 4000, TopP: 0.9, Family: "gpt-5"}
	ReasoningProfile  = Profile{Model: "o1-preview", Temperature: 1.0, MaxTokens: 10000, Reasoning: true, Family: "o1"}
	MultimodalProfile = Profile{Model: "gpt-4o", Temperature: 0.3, MaxTokens: 2000, Family: "gpt-4o"}
	DiagnosisProfile  = Profile{Model: "o1-mini", Temperature: 1.0, MaxTokens: 5000, Reasoning: true, Family: "o1-mini"}
)

// Profiles lists the profiles by name.
var Profiles = map[string]Profile{
	"analysis":   AnalysisProfile,
	"reasoning":  ReasoningProfile,
	"multimodal": MultimodalProfile,
	"diagnosis":  DiagnosisProfile,
}

const systemPrompt = `You are an expert computational geometry engineer with deep knowledge of:
- RhinoCommon geometric operations
- Topology optimization algorithms (BESO, Level Set, Multi-Objective)
- Mesh analysis and processing
- 3D modeling and CAD operations
- Performance optimization for geometric computations

Provide detailed analysis with step-by-step reasoning for all geometry-related queries.
Always explain the mathematical principles, computational complexity and practical implications.
Respond with a single JSON object.`

// request builds the chat completion request for prompt.
func (p Profile) request(prompt string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:               p.Model,
		Temperature:         p.Temperature,
		MaxCompletionTokens: p.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	if p.Reasoning {
		req.Messages = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: systemPrompt + "\n\n" + prompt},
		}
		return req
	}

	req.TopP = p.TopP
	req.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	return req
}

func (p Profile) availableIn(models []string) bool {
	for _, id := range models {
		if strings.Contains(id, p.Family) {
			return true
		}
	}
	return false
}
