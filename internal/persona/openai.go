package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

// OpenAISource asks a chat model to answer as each role.
type OpenAISource struct {
	apiKey     string
	url        string
	httpClient *http.Client
	experts    []domain.Persona
}

var _ domain.PersonaSource = (*OpenAISource)(nil)

func NewOpenAISource(apiKey string) *OpenAISource {
	return &OpenAISource{
		apiKey:     apiKey,
		url:        openAIChatURL,
		httpClient: &http.Client{},
		experts:    DefaultExperts(),
	}
}

// SetURL points the source at an OpenAI-compatible endpoint.
func (s *OpenAISource) SetURL(url string) {
	s.url = url
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type roleReply struct {
	Content    string               `json:"content"`
	Confidence float64              `json:"confidence"`
	Beliefs    []domain.BeliefDraft `json:"beliefs"`
	Flags      []string             `json:"flags"`
}

func (s *OpenAISource) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       chatModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (s *OpenAISource) Respond(ctx context.Context, role, query string, hints []string) (*domain.RoleResponse, error) {
	location := "none"
	if len(hints) > 0 {
		location = strings.Join(hints, ", ")
	}
	messages := []chatMessage{
		{Role: "system", Content: fmt.Sprintf(rolePrompt, role)},
		{Role: "user", Content: fmt.Sprintf(roleQueryPrompt, query, location)},
	}

	result, err := s.complete(ctx, messages, 0.2)
	if err != nil {
		return nil, fmt.Errorf("respond as %s: %w", role, err)
	}

	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var reply roleReply
	if err := json.Unmarshal([]byte(result), &reply); err != nil {
		return nil, fmt.Errorf("parse role response: %w (raw: %s)", err, result)
	}

	out := &domain.RoleResponse{
		Role:       role,
		Content:    reply.Content,
		Confidence: scoring.Clamp01(reply.Confidence),
		Flags:      reply.Flags,
	}
	for _, b := range reply.Beliefs {
		if strings.TrimSpace(b.Content) == "" {
			continue
		}
		b.Confidence = scoring.Clamp01(b.Confidence)
		out.Beliefs = append(out.Beliefs, b)
	}
	return out, nil
}

func (s *OpenAISource) Experts() []domain.Persona {
	return append([]domain.Persona(nil), s.experts...)
}
