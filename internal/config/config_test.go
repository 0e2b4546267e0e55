package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wuchris/glci/internal/config"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// writeConfig writes a config.json into dir and changes the working directory
// to dir for the duration of the test.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvDataPath, "")
	t.Setenv(config.EnvRegistryPath, "")
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	orig, _ := os.Getwd()
	_ = os.Chdir(dir)
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Format != config.DefaultFormat {
		t.Errorf("Format: expected %q, got %q", config.DefaultFormat, cfg.Format)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Concurrency != config.DefaultConcurrency {
		t.Errorf("Concurrency: expected %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.Rate != config.DefaultRate {
		t.Errorf("Rate: expected %g, got %g", config.DefaultRate, cfg.Rate)
	}
	if cfg.DataPath == "" {
		t.Error("DataPath should have a default value")
	}
	if cfg.RegistryPath == "" {
		t.Error("RegistryPath should have a default value")
	}
}

// ─── Config file loading ──────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{
		DefaultFormat: "json",
		Timeout:       "60s",
		Concurrency:   4,
		Rate:          2.5,
		DataPath:      "/tmp/glci-data",
		RegistryPath:  "/tmp/glci-series.yaml",
	})

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Format != "json" {
		t.Errorf("Format: expected json, got %q", cfg.Format)
	}
	if cfg.Timeout.String() != "1m0s" {
		t.Errorf("Timeout: expected 1m0s, got %q", cfg.Timeout.String())
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency: expected 4, got %d", cfg.Concurrency)
	}
	if cfg.Rate != 2.5 {
		t.Errorf("Rate: expected 2.5, got %g", cfg.Rate)
	}
	if cfg.DataPath != "/tmp/glci-data" {
		t.Errorf("DataPath: expected /tmp/glci-data, got %q", cfg.DataPath)
	}
	if cfg.RegistryPath != "/tmp/glci-series.yaml" {
		t.Errorf("RegistryPath: expected /tmp/glci-series.yaml, got %q", cfg.RegistryPath)
	}
}

func TestLoadConfigPathRecorded(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{DataPath: "/tmp/x"})

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigPath == "" {
		t.Error("ConfigPath should be set when config.json is found")
	}
	if !strings.Contains(cfg.ConfigPath, "config.json") {
		t.Errorf("ConfigPath should contain config.json, got %q", cfg.ConfigPath)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	orig, _ := os.Getwd()
	_ = os.Chdir(dir)
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load without config.json should not error: %v", err)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty when no file found, got %q", cfg.ConfigPath)
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{Timeout: "not-a-duration"})

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should use default %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
}

// ─── Environment variable priority ───────────────────────────────────────────

func TestLoadEnvDataPathOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.File{DataPath: "/from/file"})
	t.Setenv(config.EnvDataPath, "/from/env")
	t.Setenv(config.EnvRegistryPath, "")

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataPath != "/from/env" {
		t.Errorf("env GLCI_DATA_PATH should override file: expected /from/env, got %q", cfg.DataPath)
	}
}

// ─── CLI flag priority ────────────────────────────────────────────────────────

func TestLoadFlagDataPathOverridesEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.File{DataPath: "/from/file"})
	t.Setenv(config.EnvDataPath, "/from/env")

	cfg, err := config.Load("/from/flag", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataPath != "/from/flag" {
		t.Errorf("flag should override env and file: expected /from/flag, got %q", cfg.DataPath)
	}
}

func TestLoadFlagEmptyDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{DataPath: "/from/file"})

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataPath != "/from/file" {
		t.Errorf("empty flag should not override file value: expected /from/file, got %q", cfg.DataPath)
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	f := config.File{
		DefaultFormat: "csv",
		Timeout:       "45s",
		Concurrency:   6,
		Rate:          3.0,
		DataPath:      "/data/glci",
		RegistryPath:  "/data/glci/series.yaml",
	}

	if err := config.WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got config.File
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	if got.DefaultFormat != f.DefaultFormat {
		t.Errorf("DefaultFormat: expected %q, got %q", f.DefaultFormat, got.DefaultFormat)
	}
	if got.Timeout != f.Timeout {
		t.Errorf("Timeout: expected %q, got %q", f.Timeout, got.Timeout)
	}
	if got.Concurrency != f.Concurrency {
		t.Errorf("Concurrency: expected %d, got %d", f.Concurrency, got.Concurrency)
	}
	if got.Rate != f.Rate {
		t.Errorf("Rate: expected %g, got %g", f.Rate, got.Rate)
	}
	if got.DataPath != f.DataPath {
		t.Errorf("DataPath: expected %q, got %q", f.DataPath, got.DataPath)
	}
}

func TestWriteFilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := config.WriteFile(path, config.File{DataPath: "/x"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions: expected 0600, got %04o", info.Mode().Perm())
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()

	if tmpl.DefaultFormat != "table" {
		t.Errorf("Template.DefaultFormat: expected table, got %q", tmpl.DefaultFormat)
	}
	if tmpl.Timeout != "30s" {
		t.Errorf("Template.Timeout: expected 30s, got %q", tmpl.Timeout)
	}
	if tmpl.Concurrency != config.DefaultConcurrency {
		t.Errorf("Template.Concurrency: expected %d, got %d", config.DefaultConcurrency, tmpl.Concurrency)
	}
	if tmpl.Rate != config.DefaultRate {
		t.Errorf("Template.Rate: expected %g, got %g", config.DefaultRate, tmpl.Rate)
	}
}

// ─── Registry ─────────────────────────────────────────────────────────────────

const sampleRegistry = `
series:
  fed_assets:
    source: fred
    source_id: WALCL
    description: Federal Reserve total assets
    country: US
    frequency: weekly
    unit: USD
    type: level
    expected_sign: 1
  vix:
    source: fred
    source_id: VIXCLS
    description: CBOE Volatility Index
    country: US
    frequency: daily
    unit: index
    type: level
    expected_sign: -1
indices:
  glci:
    frequency: weekly
    normalize:
      mean: 100
      stdev: 10
    pillars:
      liquidity:
        weight: 0.4
        sign: 1
        transforms: [zscore]
        components:
          - series: fed_assets
            country: US
            sign: 1
            transform: zscore
  net_liquidity:
    method: arithmetic
    frequency: weekly
    components:
      - series: fed_assets
        operation: add
        weight: 1.0
country_weights:
  US: 0.6
  EU: 0.4
`

func writeRegistry(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "series.yaml")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir)

	reg, err := config.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	entry, ok := reg.Series("fed_assets")
	if !ok {
		t.Fatal("expected fed_assets series to be present")
	}
	if entry.SourceID != "WALCL" {
		t.Errorf("SourceID: expected WALCL, got %q", entry.SourceID)
	}

	if _, ok := reg.Series("nonexistent"); ok {
		t.Error("nonexistent series should not be found")
	}

	idx, ok := reg.Index("glci")
	if !ok {
		t.Fatal("expected glci index to be present")
	}
	if !idx.IsPillarized() {
		t.Error("glci index should be pillarized")
	}

	arith, ok := reg.Index("net_liquidity")
	if !ok {
		t.Fatal("expected net_liquidity index to be present")
	}
	if arith.IsPillarized() {
		t.Error("net_liquidity index should not be pillarized")
	}
	if len(arith.Components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(arith.Components))
	}

	if w := reg.CountryWeight("US"); w != 0.6 {
		t.Errorf("CountryWeight(US): expected 0.6, got %g", w)
	}

	all := reg.AllSeries()
	if len(all) != 2 || all[0] != "fed_assets" || all[1] != "vix" {
		t.Errorf("AllSeries: expected sorted [fed_assets vix], got %v", all)
	}
}

func TestRegistryHolderSwap(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir)
	reg, err := config.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	holder := config.NewRegistryHolder(reg)
	if holder.Current() != reg {
		t.Error("Current should return the initially stored registry")
	}

	reg2, err := config.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	holder.Swap(reg2)
	if holder.Current() != reg2 {
		t.Error("Current should return the swapped-in registry")
	}
}
