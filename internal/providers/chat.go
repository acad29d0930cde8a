package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultChatTimeout = 120 * time.Second

// ChatConfig captures the runtime settings required to talk to a chat-style
// LLM endpoint (OpenAI-compatible chat completions).
type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Prompt is the ai_prompt template; empty uses DefaultChatPrompt.
	Prompt string
	// ContextPrompt is appended to the system prompt when the batch carries
	// wrapper context and ai_context_prompt_enabled is set.
	ContextPrompt string
	// Params holds custom_ai_parameters (temperature etc.) merged verbatim
	// into the request body.
	Params  map[string]any
	Timeout time.Duration
	Retry   RetryPolicy
}

// ChatProvider implements Translator over a chat completion API.
type ChatProvider struct {
	cfg        ChatConfig
	httpClient *http.Client
}

// NewChatProvider constructs a chat provider.
func NewChatProvider(cfg ChatConfig) *ChatProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &ChatProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *ChatProvider) Name() string { return "chat" }

// TranslateSingle translates one line. The model is asked for plain text.
func (p *ChatProvider) TranslateSingle(ctx context.Context, line, sourceLang, targetLang string) (string, error) {
	system := RenderPrompt(p.cfg.Prompt, sourceLang, targetLang) +
		" Respond with the translated line only, no quotes, no commentary."
	var result string
	err := withRetry(ctx, p.cfg.Retry, func() error {
		content, err := p.complete(ctx, system, line, false)
		if err != nil {
			return err
		}
		result = strings.TrimSpace(content)
		return nil
	})
	return result, err
}

type chatBatchPayload struct {
	Lines         []chatBatchLine `json:"lines"`
	ContextBefore []string        `json:"context_before,omitempty"`
	ContextAfter  []string        `json:"context_after,omitempty"`
}

type chatBatchLine struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// TranslateBatch translates an ordered batch, correlating results by
// position. Missing positions are not an error here; the fallback engine
// deals with them.
func (p *ChatProvider) TranslateBatch(ctx context.Context, items []Item, sourceLang, targetLang string, opts BatchOptions) (map[int]string, error) {
	if len(items) == 0 {
		return map[int]string{}, nil
	}
	system := RenderPrompt(p.cfg.Prompt, sourceLang, targetLang) + " " + batchInstructions
	if len(opts.PreContext)+len(opts.PostContext) > 0 && strings.TrimSpace(p.cfg.ContextPrompt) != "" {
		system += " " + RenderPrompt(p.cfg.ContextPrompt, sourceLang, targetLang)
	}

	payload := chatBatchPayload{
		Lines:         make([]chatBatchLine, len(items)),
		ContextBefore: opts.PreContext,
		ContextAfter:  opts.PostContext,
	}
	for i, item := range items {
		payload.Lines[i] = chatBatchLine{Position: item.Position, Text: item.Line}
	}
	user, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var result map[int]string
	err = withRetry(ctx, p.cfg.Retry, func() error {
		content, err := p.complete(ctx, system, string(user), true)
		if err != nil {
			return err
		}
		parsed, err := parseBatchContent(content)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filterKnownPositions(result, items), nil
}

// Models lists model identifiers offered by the endpoint.
func (p *ChatProvider) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return nil, fmt.Errorf("%w: http %d", kindErr, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(body, 200))
	}
	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode models: %v", ErrInvalidResponse, err)
	}
	models := make([]string, 0, len(decoded.Data))
	for _, entry := range decoded.Data {
		if entry.ID != "" {
			models = append(models, entry.ID)
		}
	}
	return models, nil
}

// Languages returns the language codes the chat provider is trusted with.
// Chat models are not language-pair constrained, so this is the full table.
func (p *ChatProvider) Languages(ctx context.Context) ([]string, error) {
	return knownLanguageCodes(), nil
}

func (p *ChatProvider) complete(ctx context.Context, system, user string, jsonResponse bool) (string, error) {
	if p.cfg.APIKey == "" {
		return "", errors.New("chat provider: api key required")
	}
	body := map[string]any{
		"model": p.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if jsonResponse {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	for key, value := range p.cfg.Params {
		body[key] = value
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return "", fmt.Errorf("%w: http %d: %s", kindErr, resp.StatusCode, truncate(raw, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(raw, 200))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrInvalidResponse, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return decoded.Choices[0].Message.Content, nil
}

func (p *ChatProvider) setHeaders(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// parseBatchContent decodes the model's batch reply. Two shapes are accepted:
// the instructed {"translations":[{"position":N,"text":"…"}]} form, and a
// bare object mapping position strings to translations. Anything else is an
// invalid response.
func parseBatchContent(content string) (map[int]string, error) {
	content = trimCodeFences(content)

	var envelope struct {
		Translations []struct {
			Position *int   `json:"position"`
			Text     string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err == nil && envelope.Translations != nil {
		result := make(map[int]string, len(envelope.Translations))
		for _, entry := range envelope.Translations {
			if entry.Position == nil {
				return nil, fmt.Errorf("%w: translation entry missing position", ErrInvalidResponse)
			}
			if _, dup := result[*entry.Position]; !dup {
				result[*entry.Position] = entry.Text
			}
		}
		return result, nil
	}

	var flat map[string]string
	if err := json.Unmarshal([]byte(content), &flat); err == nil && len(flat) > 0 {
		result := make(map[int]string, len(flat))
		for key, value := range flat {
			position, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("%w: non-numeric position %q", ErrInvalidResponse, key)
			}
			result[position] = value
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: unrecognized batch payload", ErrInvalidResponse)
}

func trimCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}

func truncate(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "…"
	}
	return text
}
