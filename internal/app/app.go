// Package app wires together configuration, the registry, the storage
// tiers, the fetcher, and the analytics engines into a single Deps struct
// that every cmd RunE receives at startup.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wuchris/glci/internal/cache"
	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/export"
	"github.com/wuchris/glci/internal/featurematrix"
	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/index"
	"github.com/wuchris/glci/internal/riskmetrics"
	"github.com/wuchris/glci/internal/store"
)

// EnvFredAPIKey is the only credential the fetcher collaborator reads
// directly from the environment; the other four providers are public.
const EnvFredAPIKey = "FRED_API_KEY"

// Deps holds all runtime dependencies injected into command Run functions.
type Deps struct {
	Config   *config.Config
	Registry *config.Registry
	Store    *store.Store
	Cache    *cache.Cache

	Fetcher fetcher.Fetcher

	FeatureBuilder *featurematrix.Builder
	IndexComputer  *index.Computer
	GLCI           *glci.Computer
	Risk           *riskmetrics.Computer
	Exporter       *export.Exporter
}

// New loads the registry, opens the store and a run-scoped cache, and
// wires up the fetcher and every analytics engine behind cfg's resolved
// paths. Callers must defer deps.Close() to release the cache's temp file.
func New(cfg *config.Config) (*Deps, error) {
	reg, err := config.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	rawPath := filepath.Join(cfg.DataPath, "raw")
	curatedPath := filepath.Join(cfg.DataPath, "curated")
	st, err := store.NewStore(rawPath, curatedPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	c, err := cache.New("")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	f := fetcher.NewMulti(fetcher.Keys{
		FredAPIKey: os.Getenv(EnvFredAPIKey),
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.Rate,
		Debug:      cfg.Debug,
	})

	builder := featurematrix.NewBuilder(reg, f, c)
	idxComputer := index.NewComputer(reg, f, c)
	glciComputer := glci.NewComputer(reg, builder, f, st)
	riskComputer := riskmetrics.NewComputer(reg, f, st)
	exporter := export.NewExporter(reg, st, glciComputer, riskComputer)

	return &Deps{
		Config:         cfg,
		Registry:       reg,
		Store:          st,
		Cache:          c,
		Fetcher:        f,
		FeatureBuilder: builder,
		IndexComputer:  idxComputer,
		GLCI:           glciComputer,
		Risk:           riskComputer,
		Exporter:       exporter,
	}, nil
}

// Close releases the run-scoped cache's backing temp file.
func (d *Deps) Close() error {
	return d.Cache.Close()
}
