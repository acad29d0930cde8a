package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMachineTimeout = 30 * time.Second

// MachineConfig configures a stateless machine-translation REST endpoint
// (LibreTranslate-compatible: POST /translate, GET /languages).
type MachineConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   RetryPolicy
}

// MachineProvider implements Translator over a language-pair MT API.
type MachineProvider struct {
	cfg        MachineConfig
	httpClient *http.Client
}

// NewMachineProvider constructs a machine translation provider.
func NewMachineProvider(cfg MachineConfig) *MachineProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMachineTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &MachineProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *MachineProvider) Name() string { return "machine" }

// TranslateSingle translates one line through the pair-based endpoint.
func (p *MachineProvider) TranslateSingle(ctx context.Context, line, sourceLang, targetLang string) (string, error) {
	var result string
	err := withRetry(ctx, p.cfg.Retry, func() error {
		translated, err := p.translate(ctx, []string{line}, sourceLang, targetLang)
		if err != nil {
			return err
		}
		if len(translated) != 1 {
			return fmt.Errorf("%w: expected 1 translation, got %d", ErrInvalidResponse, len(translated))
		}
		result = translated[0]
		return nil
	})
	return result, err
}

// TranslateBatch translates items positionally. The MT endpoint returns an
// array aligned with the request, so correlation is by index; short replies
// simply leave the tail positions missing for the fallback engine.
func (p *MachineProvider) TranslateBatch(ctx context.Context, items []Item, sourceLang, targetLang string, opts BatchOptions) (map[int]string, error) {
	if len(items) == 0 {
		return map[int]string{}, nil
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = item.Line
	}
	var translated []string
	err := withRetry(ctx, p.cfg.Retry, func() error {
		var err error
		translated, err = p.translate(ctx, lines, sourceLang, targetLang)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(translated) > len(items) {
		return nil, fmt.Errorf("%w: got %d translations for %d lines", ErrInvalidResponse, len(translated), len(items))
	}
	result := make(map[int]string, len(translated))
	for i, text := range translated {
		result[items[i].Position] = text
	}
	return result, nil
}

// Models is not meaningful for pair-based MT; the single pseudo-model makes
// the capability uniform for callers.
func (p *MachineProvider) Models(ctx context.Context) ([]string, error) {
	return []string{"default"}, nil
}

// Languages queries the endpoint's supported language codes.
func (p *MachineProvider) Languages(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}
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
		return nil, fmt.Errorf("%w: http %d", ErrInvalidResponse, resp.StatusCode)
	}
	var decoded []struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode languages: %v", ErrInvalidResponse, err)
	}
	codes := make([]string, 0, len(decoded))
	for _, entry := range decoded {
		if entry.Code != "" {
			codes = append(codes, entry.Code)
		}
	}
	return codes, nil
}

func (p *MachineProvider) translate(ctx context.Context, lines []string, sourceLang, targetLang string) ([]string, error) {
	payload := map[string]any{
		"q":      lines,
		"source": sourceLang,
		"target": targetLang,
		"format": "text",
	}
	if p.cfg.APIKey != "" {
		payload["api_key"] = p.cfg.APIKey
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/translate", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return nil, fmt.Errorf("%w: http %d: %s", kindErr, resp.StatusCode, truncate(body, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(body, 200))
	}

	// Accept both the array form {"translatedText": ["…"]} and the single
	// string form some deployments return for one-line requests.
	var arrayForm struct {
		TranslatedText []string `json:"translatedText"`
	}
	if err := json.Unmarshal(body, &arrayForm); err == nil && arrayForm.TranslatedText != nil {
		return arrayForm.TranslatedText, nil
	}
	var stringForm struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.Unmarshal(body, &stringForm); err == nil && stringForm.TranslatedText != "" {
		return []string{stringForm.TranslatedText}, nil
	}
	return nil, fmt.Errorf("%w: unrecognized translate payload", ErrInvalidResponse)
}
