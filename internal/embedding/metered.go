package embedding

import (
	"context"

	"memoryd/internal/usage"
)

// Metered bills every successful embedding to a usage.Meter. Failed calls
// are not recorded.
type Metered struct {
	Engine
	meter *usage.Meter
}

// NewMetered wraps engine so its token usage reaches meter.
func NewMetered(engine Engine, meter *usage.Meter) *Metered {
	return &Metered{Engine: engine, meter: meter}
}

// Embed calls the wrapped engine and records usage on success.
func (m *Metered) Embed(ctx context.Context, text string, mode InputType) (Result, error) {
	res, err := m.Engine.Embed(ctx, text, mode)
	if err != nil {
		return Result{}, err
	}
	m.meter.Embedding(m.Engine.Source(), "embed:"+string(mode), res.Tokens)
	return res, nil
}
