package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/render"
)

// normaliseIDs lower-cases all series/index ids and removes duplicates
// while preserving order (the registry keys are case-insensitive handles
// into a fixed YAML document, not a live catalog lookup).
func normaliseIDs(ids []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// emit renders result to --out (if set) or stdout, then prints the verbose
// footer unless --quiet was given.
func emit(result *model.Result, format string) error {
	if globalFlags.Quiet {
		if globalFlags.Out != "" {
			return render.RenderTo(globalFlags.Out, result, format)
		}
		return render.Render(os.Stdout, result, format)
	}

	if globalFlags.Out != "" {
		if err := render.RenderTo(globalFlags.Out, result, format); err != nil {
			return err
		}
	} else if err := render.Render(os.Stdout, result, format); err != nil {
		return err
	}
	render.PrintFooter(os.Stdout, result, globalFlags.Verbose)
	return nil
}

// printKVTable and loadConfigFile live in config.go.

// outputWriter returns the writer a pipeline-style command (analyze, chart)
// should print to: --out file if set, otherwise w. The returned close func
// is always safe to defer.
func outputWriter(w io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("opening --out %s: %w", globalFlags.Out, err)
	}
	return f, f.Close, nil
}

// printKVTableTo writes a two-column key/value table to w.
func printKVTableTo(w io.Writer, rows [][]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-*s  %s\n", width, r[0], r[1])
	}
}

// ─── Error taxonomy (§7) ────────────────────────────────────────────────────
//
// Errors aren't typed per-kind; RunE functions wrap a sentinel with
// fmt.Errorf("...: %w", sentinel) and exitCodeFor unwraps it to pick the
// process exit code.

var (
	errUserInput     = errors.New("user input error")
	errFetchExhausted = errors.New("fetch retries exhausted")
)

func isUserInputError(err error) bool {
	return errors.Is(err, errUserInput)
}

func isFetchExhausted(err error) bool {
	return errors.Is(err, errFetchExhausted)
}

// wrapUserInput tags err as a user-input error (exit code 2).
func wrapUserInput(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), errUserInput)
}
