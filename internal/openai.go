package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// maxTranscriptChars bounds the transcript sent to the model.
const maxTranscriptChars = 150000

// OpenAIClientInterface defines the interface for OpenAI client operations
type OpenAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, model, prompt string) (string, error)
}

// OpenAIClient wraps the official OpenAI Go SDK
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}
}

// CreateChatCompletion implements the chat completion method
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, model, prompt string) (string, error) {
	// Map model string to openai model constant
	var oaiModel openai.ChatModel
	switch model {
	case "gpt-4o":
		oaiModel = openai.ChatModelGPT4o
	case "gpt-4o-mini":
		oaiModel = openai.ChatModelGPT4oMini
	case "o4-mini":
		oaiModel = openai.ChatModelO4Mini
	case "gpt-4.1-nano":
		oaiModel = openai.ChatModelGPT4_1Nano
	case "gpt-4.1-mini":
		oaiModel = openai.ChatModelGPT4_1Mini
	default:
		return "", fmt.Errorf("unsupported model: %s", model)
	}

	params := openai.ChatCompletionNewParams{
		Model: oaiModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	// Reasoning models reject a custom temperature.
	if oaiModel != openai.ChatModelO4Mini {
		params.Temperature = openai.Float(0.2)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// RemoteSummarizer asks an OpenAI chat model for a structured summary
type RemoteSummarizer struct {
	client     OpenAIClientInterface
	apiKey     string
	model      string
	timeout    time.Duration
	prompts    *PromptManager
	clientOnce sync.Once
}

// NewRemoteSummarizer creates a summarizer with lazy client initialization
func NewRemoteSummarizer(apiKey, model string, timeout time.Duration, prompts *PromptManager) *RemoteSummarizer {
	return &RemoteSummarizer{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		prompts: prompts,
	}
}

// NewRemoteSummarizerWithClient injects a client, mainly for tests
func NewRemoteSummarizerWithClient(client OpenAIClientInterface, model string, timeout time.Duration, prompts *PromptManager) *RemoteSummarizer {
	return &RemoteSummarizer{
		client:  client,
		model:   model,
		timeout: timeout,
		prompts: prompts,
	}
}

func (s *RemoteSummarizer) Backend() Backend { return BackendRemote }

// ensureClient initializes the OpenAI client if needed
func (s *RemoteSummarizer) ensureClient() error {
	if s.client != nil {
		return nil
	}
	if err := ValidateOpenAIAPIKey(s.apiKey); err != nil {
		return err
	}
	s.clientOnce.Do(func() {
		s.client = NewOpenAIClient(s.apiKey)
	})
	return nil
}

// Summarize sends the (truncated) transcript and parses the JSON answer,
// falling back to treating the whole reply as the TL;DR.
func (s *RemoteSummarizer) Summarize(ctx context.Context, video VideoCandidate, transcript TranscriptResult) (SummaryArtifact, error) {
	if err := s.ensureClient(); err != nil {
		return SummaryArtifact{}, err
	}

	text := transcript.Text()
	if r := []rune(text); len(r) > maxTranscriptChars {
		text = string(r[:maxTranscriptChars])
	}
	prompt, err := s.prompts.CreatePrompt(text, video)
	if err != nil {
		return SummaryArtifact{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	content, err := s.client.CreateChatCompletion(ctx, s.model, prompt)
	if err != nil {
		return SummaryArtifact{}, fmt.Errorf("creating chat completion: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return SummaryArtifact{}, fmt.Errorf("empty summary from model %s", s.model)
	}

	artifact := parseSummaryReply(content)
	artifact.VideoID = video.ID
	artifact.Title = video.Title
	artifact.Backend = BackendRemote
	return artifact, nil
}

type summaryReply struct {
	TLDR      string   `json:"tldr"`
	KeyPoints []string `json:"key_points"`
	Actions   []string `json:"actions"`
	Quote     string   `json:"quote"`
}

// parseSummaryReply reads the JSON object in the reply, tolerating code
// fences and prose around it.
func parseSummaryReply(content string) SummaryArtifact {
	if idx := strings.Index(content, "{"); idx >= 0 {
		if raw := extractJSON([]byte(content[idx:])); raw != nil {
			var reply summaryReply
			if err := json.Unmarshal(raw, &reply); err == nil && reply.TLDR != "" {
				return SummaryArtifact{
					TLDR:        strings.TrimSpace(reply.TLDR),
					KeyPoints:   trimAll(reply.KeyPoints),
					ActionItems: trimAll(reply.Actions),
					Quote:       strings.Trim(strings.TrimSpace(reply.Quote), `"“”`),
				}
			}
		}
	}
	return SummaryArtifact{TLDR: content}
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(strings.TrimLeft(it, "-*• ")); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// ValidateOpenAIAPIKey checks that a key is configured
func ValidateOpenAIAPIKey(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("OpenAI API key is not set (set openai_api_key or OPENAI_API_KEY)")
	}
	return nil
}
