package cli

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"batch-runner/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// userFacing strips wrapping from a validation error so that only its
// message reaches the terminal. Joined validation errors are already plain.
func userFacing(err error) error {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	if _, joined := err.(interface{ Unwrap() []error }); joined {
		return err
	}
	return verr
}
