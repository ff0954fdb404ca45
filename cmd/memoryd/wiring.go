package main

import (
	"context"
	"fmt"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/logging"
	"memoryd/internal/registry"
	"memoryd/internal/server"
	"memoryd/internal/stats"
	"memoryd/internal/store"
	"memoryd/internal/usage"
)

func pricesFrom(c *config.Config) usage.Prices {
	prices := make(usage.Prices, len(c.Pricing.Sources))
	for name, p := range c.Pricing.Sources {
		prices[name] = usage.PerMillion(p.InputPerMillion, p.CachedPerMillion, p.OutputPerMillion)
	}
	return prices
}

// openLedger builds the cost ledger, restoring it from disk when persistence is on.
func openLedger(c *config.Config) *usage.Ledger {
	var opts []usage.LedgerOption
	if path := c.CostsPath(); path != "" {
		opts = append(opts, usage.WithStore(usage.NewLedgerStore(path), c.GetFlushInterval()))
	}
	return usage.NewLedger(pricesFrom(c), opts...)
}

// openStore opens the record store with the configured timeout.
func openStore(ctx context.Context, c *config.Config) (*store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, c.GetStoreOpenTimeout())
	defer cancel()
	return store.Open(ctx, c.DatabasePath())
}

// app is a fully wired server. The store is published asynchronously by run.
type app struct {
	cfg      *config.Config
	names    *registry.Registry
	ledger   *usage.Ledger
	activity *usage.ActivityLog
	handle   *store.Handle
	embedder embedding.Engine
	srv      *server.Server
}

func newApp(c *config.Config) (*app, error) {
	names := registry.Open(c.Data.Dir)
	ledger := openLedger(c)
	activity := usage.NewActivityLog(c.Activity.Capacity, c.Activity.MaxRecent)
	meter := usage.NewMeter(ledger, activity)

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:   c.Embedding.Provider,
		Model:      c.Embedding.Model,
		APIKey:     c.Embedding.APIKey,
		BaseURL:    c.Embedding.BaseURL,
		Dimensions: c.Embedding.Dimensions,
		Timeout:    c.GetEmbeddingTimeout(),
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}
	// Cache outside the meter so cache hits are never billed.
	embedder, err := embedding.NewCached(embedding.NewMetered(engine, meter), c.Embedding.QueryCacheSize)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	handle := &store.Handle{}
	srv := server.New(server.Deps{
		Registry: names,
		Meter:    meter,
		Store:    handle,
		Stats:    stats.New(handle, names),
		Embedder: embedder,
	}, server.Options{
		Addr:            c.Server.Addr,
		ReadTimeout:     c.GetReadTimeout(),
		WriteTimeout:    c.GetWriteTimeout(),
		ShutdownTimeout: c.GetShutdownTimeout(),
		MaxConnections:  c.Server.MaxConnections,
		WriteRate:       c.Server.WriteRatePerSecond,
		WriteBurst:      c.Server.WriteBurst,
		MaxBodyBytes:    c.Server.MaxBodyBytes,
		ActivityLimit:   c.Activity.DefaultLimit,
	})

	return &app{
		cfg:      c,
		names:    names,
		ledger:   ledger,
		activity: activity,
		handle:   handle,
		embedder: embedder,
		srv:      srv,
	}, nil
}

// publishStore opens the store and makes it visible to handlers. A failed
// open leaves the server up and answering 503 on store routes.
func (a *app) publishStore(ctx context.Context) {
	start := time.Now()
	st, err := openStore(ctx, a.cfg)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("store unavailable: %v", err)
		logging.Audit(logging.AuditEvent{Event: logging.AuditStoreReady, Target: a.cfg.DatabasePath(), Error: err.Error()})
		return
	}
	if ctx.Err() != nil {
		st.Close()
		return
	}
	a.handle.Set(st)
	logging.Audit(logging.AuditEvent{
		Event:   logging.AuditStoreReady,
		Target:  st.Path(),
		Success: true,
		Fields:  map[string]interface{}{"elapsed": time.Since(start).String()},
	})
}

// close releases everything newApp and publishStore acquired.
func (a *app) close() {
	if err := a.handle.Close(); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to close store: %v", err)
	}
	if err := a.ledger.Close(); err != nil {
		logging.Get(logging.CategoryUsage).Warn("failed to save cost ledger: %v", err)
	}
	embedding.Release(a.embedder)
}
