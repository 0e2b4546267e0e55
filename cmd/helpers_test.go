package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestNormaliseIDsDedupesAndLowercases(t *testing.T) {
	got := normaliseIDs([]string{"WALCL", "walcl", " RRPONTSYD ", ""})
	want := []string{"walcl", "rrpontsyd"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWrapUserInputIsUserInputError(t *testing.T) {
	err := wrapUserInput("bad flag %q", "--index")
	if !isUserInputError(err) {
		t.Fatalf("expected wrapUserInput error to be a user input error: %v", err)
	}
	if isFetchExhausted(err) {
		t.Fatalf("did not expect a user input error to also be a fetch-exhausted error")
	}
}
