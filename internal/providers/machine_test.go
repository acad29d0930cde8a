package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMachineTranslateBatchAlignsPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Q      []string `json:"q"`
			Source string   `json:"source"`
			Target string   `json:"target"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Source != "en" || req.Target != "ro" {
			t.Fatalf("unexpected language pair %s->%s", req.Source, req.Target)
		}
		// Reply short: only the first two lines.
		json.NewEncoder(w).Encode(map[string]any{"translatedText": req.Q[:2]})
	}))
	defer srv.Close()

	p := NewMachineProvider(MachineConfig{BaseURL: srv.URL})
	items := []Item{{5, "a"}, {6, "b"}, {7, "c"}}
	result, err := p.TranslateBatch(context.Background(), items, "en", "ro", BatchOptions{})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected partial result of 2, got %v", result)
	}
	if _, ok := result[7]; ok {
		t.Fatalf("missing tail position should stay missing: %v", result)
	}
}

func TestMachineRejectsOverlongReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"translatedText": []string{"a", "b", "c"}})
	}))
	defer srv.Close()

	p := NewMachineProvider(MachineConfig{BaseURL: srv.URL})
	_, err := p.TranslateBatch(context.Background(), []Item{{0, "x"}}, "en", "ro", BatchOptions{})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestMachineTranslateSingleStringForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translatedText":"Salut"}`))
	}))
	defer srv.Close()

	p := NewMachineProvider(MachineConfig{BaseURL: srv.URL})
	got, err := p.TranslateSingle(context.Background(), "Hello", "en", "ro")
	if err != nil {
		t.Fatalf("single failed: %v", err)
	}
	if got != "Salut" {
		t.Fatalf("unexpected translation %q", got)
	}
}

func TestMachineLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"code":"en"},{"code":"ro"}]`))
	}))
	defer srv.Close()

	p := NewMachineProvider(MachineConfig{BaseURL: srv.URL})
	langs, err := p.Languages(context.Background())
	if err != nil {
		t.Fatalf("languages failed: %v", err)
	}
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "ro" {
		t.Fatalf("unexpected languages %v", langs)
	}
}

func TestMachineTransientKindOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewMachineProvider(MachineConfig{BaseURL: srv.URL})
	_, err := p.TranslateSingle(context.Background(), "x", "en", "ro")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}
