package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
)

func TestSilentError(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("test error")
	err := NewSilentError(base)
	if err.Error() != "test error" {
		t.Errorf("expected 'test error', got %q", err.Error())
	}
	if !IsSilentError(err) {
		t.Error("expected IsSilentError to return true")
	}
	if !errors.Is(err, base) {
		t.Error("SilentError should unwrap to the original error")
	}
	if !IsSilentError(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected IsSilentError to see through wrapping")
	}
}

func TestIsSilentError_RegularError(t *testing.T) {
	t.Parallel()

	if IsSilentError(fmt.Errorf("regular error")) {
		t.Error("expected IsSilentError to return false for regular error")
	}
}

func TestFail_PrintsOnce(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	var errBuf bytes.Buffer
	cmd.SetErr(&errBuf)

	err := fail(cmd, errors.New("no schema"))
	if !IsSilentError(err) {
		t.Error("fail should return a SilentError")
	}
	if errBuf.String() != "no schema\n" {
		t.Errorf("stderr = %q", errBuf.String())
	}
}
