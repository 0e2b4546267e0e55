// Package config handles loading and resolving GLCI runtime configuration
// and the series/index/country-weight registry it operates against.
//
// Two layers:
//  - Config: process settings (paths, concurrency, rate limits), resolved
//    with the usual CLI flag > environment variable > config.json priority.
//  - Registry: the series/index definitions themselves, loaded once at
//    startup from a YAML file and treated as read-only process state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wuchris/glci/internal/model"
)

const (
	DefaultConfigFile   = "config.json"
	DefaultRegistryFile = "series.yaml"
	DefaultFormat       = "table"
	DefaultTimeout      = 30 * time.Second
	DefaultConcurrency  = 8
	DefaultRate         = 5.0
	EnvDataPath         = "GLCI_DATA_PATH"
	EnvRegistryPath     = "GLCI_REGISTRY_PATH"
)

// File is the on-disk representation of config.json.
type File struct {
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	Concurrency   int     `json:"concurrency"`
	Rate          float64 `json:"rate"`
	DataPath      string  `json:"data_path"`
	RegistryPath  string  `json:"registry_path"`
}

// Config is the fully-resolved runtime configuration. All callers use this
// struct; File is only read during loading.
type Config struct {
	Format       string
	Timeout      time.Duration
	Concurrency  int
	Rate         float64
	DataPath     string // root of raw/ and curated/ trees
	RegistryPath string // path to the series/index registry YAML
	ConfigPath   string // path of the config.json that was loaded (empty if none found)

	NoCache bool
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources: config.json, then
// environment variables, then explicit CLI flag values (flagDataPath /
// flagRegistryPath), in increasing priority. It also loads a .env file from
// the working directory if present, matching the pipeline's original
// process-start behavior.
func Load(flagDataPath, flagRegistryPath string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := &Config{
		Format:       DefaultFormat,
		Timeout:      DefaultTimeout,
		Concurrency:  DefaultConcurrency,
		Rate:         DefaultRate,
		DataPath:     "data",
		RegistryPath: DefaultRegistryFile,
	}

	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	}

	if v := os.Getenv(EnvDataPath); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv(EnvRegistryPath); v != "" {
		cfg.RegistryPath = v
	}

	if flagDataPath != "" {
		cfg.DataPath = flagDataPath
	}
	if flagRegistryPath != "" {
		cfg.RegistryPath = flagRegistryPath
	}

	return cfg, nil
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s", path)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.DataPath != "" {
		cfg.DataPath = f.DataPath
	}
	if f.RegistryPath != "" {
		cfg.RegistryPath = f.RegistryPath
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `glci config init`.
func Template() File {
	return File{
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
		DataPath:      "data",
		RegistryPath:  DefaultRegistryFile,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// SeriesEntry is one series' registry definition (§3 "Series config").
type SeriesEntry struct {
	SourceID     string          `yaml:"source_id"`
	Description  string          `yaml:"description"`
	Country      string          `yaml:"country"`
	Frequency    model.Frequency `yaml:"frequency"`
	Unit         string          `yaml:"unit"`
	Type         string          `yaml:"type"`
	Source       string          `yaml:"source"`
	ExpectedSign int             `yaml:"expected_sign"`
}

// IndexComponentEntry is one weighted series inside an arithmetic index's
// component list (§3 "Index config", arithmetic form).
type IndexComponentEntry struct {
	Series    string  `yaml:"series"`
	Operation string  `yaml:"operation"` // add | subtract | multiply
	Weight    float64 `yaml:"weight"`
	Country   string  `yaml:"country,omitempty"` // weighted_average: looked up in country_weights
}

// PillarComponentEntry is one series inside a pillarized index's pillar
// definition.
type PillarComponentEntry struct {
	Series    string `yaml:"series"`
	Country   string `yaml:"country"`
	Sign      int    `yaml:"sign"`
	Transform string `yaml:"transform"`
}

// PillarEntry is one pillar of a pillarized index (liquidity/credit/stress).
type PillarEntry struct {
	Weight     float64                `yaml:"weight"`
	Sign       int                    `yaml:"sign"`
	Transforms []string               `yaml:"transforms"`
	Components []PillarComponentEntry `yaml:"components"`
}

// Normalize is the pillarized index's target-distribution parameters.
type Normalize struct {
	Mean  float64 `yaml:"mean"`
	Stdev float64 `yaml:"stdev"`
}

// IndexEntry is one index's registry definition (§3 "Index config"), in
// either arithmetic or pillarized form. Exactly one of Components or
// Pillars should be populated.
type IndexEntry struct {
	Method     string                 `yaml:"method"`
	Frequency  model.Frequency        `yaml:"frequency"`
	Normalize  Normalize              `yaml:"normalize"`
	Components []IndexComponentEntry  `yaml:"components,omitempty"`
	Pillars    map[string]PillarEntry `yaml:"pillars,omitempty"`
}

// IsPillarized reports whether this index uses the pillarized form.
func (e IndexEntry) IsPillarized() bool {
	return len(e.Pillars) > 0
}

// registryFile is the top-level shape of series.yaml.
type registryFile struct {
	Series         map[string]SeriesEntry `yaml:"series"`
	Indices        map[string]IndexEntry  `yaml:"indices"`
	CountryWeights map[string]float64     `yaml:"country_weights"`
}

// Registry is the fully-loaded, immutable series/index/country-weight
// configuration. Treated as read-only process state: callers never mutate a
// *Registry in place. A reload swaps the entire struct behind the holder's
// atomic.Pointer instead (§9 "Thread safety of the registry").
type Registry struct {
	series         map[string]SeriesEntry
	indices        map[string]IndexEntry
	countryWeights map[string]float64
}

// LoadRegistry reads and parses the YAML registry file at path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	return &Registry{
		series:         rf.Series,
		indices:        rf.Indices,
		countryWeights: rf.CountryWeights,
	}, nil
}

// Series returns a single series entry and whether it was found.
func (r *Registry) Series(id string) (SeriesEntry, bool) {
	e, ok := r.series[id]
	return e, ok
}

// Index returns a single index entry and whether it was found.
func (r *Registry) Index(id string) (IndexEntry, bool) {
	e, ok := r.indices[id]
	return e, ok
}

// AllSeries returns every registered series id, sorted.
func (r *Registry) AllSeries() []string {
	return sortedKeysSeries(r.series)
}

// AllIndices returns every registered index id, sorted.
func (r *Registry) AllIndices() []string {
	return sortedKeysIndex(r.indices)
}

// CountryWeight returns the configured weight for a country, or 0 if unset.
func (r *Registry) CountryWeight(country string) float64 {
	return r.countryWeights[country]
}

func sortedKeysSeries(m map[string]SeriesEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysIndex(m map[string]IndexEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ─── Hot-swappable holder ─────────────────────────────────────────────────────

// RegistryHolder lets a long-running process observe registry reloads
// without ever mutating a Registry in place: Swap installs a new snapshot
// atomically, Current returns whatever the most recent Swap installed.
type RegistryHolder struct {
	ptr atomic.Pointer[Registry]
}

// NewRegistryHolder wraps an already-loaded Registry.
func NewRegistryHolder(r *Registry) *RegistryHolder {
	h := &RegistryHolder{}
	h.ptr.Store(r)
	return h
}

// Current returns the currently active Registry snapshot.
func (h *RegistryHolder) Current() *Registry {
	return h.ptr.Load()
}

// Swap installs a newly loaded Registry, replacing the previous snapshot in
// a single atomic store. In-flight readers holding the old *Registry keep
// working against it; there is no partial-update window.
func (h *RegistryHolder) Swap(r *Registry) {
	h.ptr.Store(r)
}
