package providers

import (
	"context"
	"errors"
	"time"
)

// GatedTranslator wraps a Translator with the usage gate: every translation
// call is checked against the daily allowance first and counted afterwards,
// and a payment-required reply pauses the gate.
type GatedTranslator struct {
	inner   Translator
	gate    *UsageGate
	modelID string
}

// NewGatedTranslator wires a translator through the gate. A nil gate returns
// the translator unchanged.
func NewGatedTranslator(inner Translator, gate *UsageGate, modelID string) Translator {
	if gate == nil {
		return inner
	}
	return &GatedTranslator{inner: inner, gate: gate, modelID: modelID}
}

func (g *GatedTranslator) Name() string { return g.inner.Name() }

func (g *GatedTranslator) TranslateSingle(ctx context.Context, line, sourceLang, targetLang string) (string, error) {
	if err := g.gate.EnsureRequestAllowed(g.modelID); err != nil {
		return "", err
	}
	out, err := g.inner.TranslateSingle(ctx, line, sourceLang, targetLang)
	g.after(err)
	return out, err
}

func (g *GatedTranslator) TranslateBatch(ctx context.Context, items []Item, sourceLang, targetLang string, opts BatchOptions) (map[int]string, error) {
	if err := g.gate.EnsureRequestAllowed(g.modelID); err != nil {
		return nil, err
	}
	out, err := g.inner.TranslateBatch(ctx, items, sourceLang, targetLang, opts)
	g.after(err)
	return out, err
}

func (g *GatedTranslator) Models(ctx context.Context) ([]string, error) {
	return g.inner.Models(ctx)
}

func (g *GatedTranslator) Languages(ctx context.Context) ([]string, error) {
	return g.inner.Languages(ctx)
}

func (g *GatedTranslator) after(err error) {
	g.gate.RecordRequest(g.modelID)
	if errors.Is(err, ErrPaymentRequired) {
		g.gate.NotifyPaymentRequired(g.modelID, time.Time{})
	}
}
