package cli

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/spec"
)

// HexResult is the JSON payload of the hex subcommands.
type HexResult struct {
	Hex    string `json:"hex"`
	Length int    `json:"length"`
	Text   string `json:"text,omitempty"` // set when the bytes are valid UTF-8
}

// NewHexCommand creates the hex command group used when authoring fixtures.
func NewHexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hex",
		Short: "Convert between raw bytes and spec hex fields",
		Long: `Encode and decode the hex notation used by stdin_hex and stdout_hex.

Decoding accepts the same forms as spec files: whitespace and underscores
are ignored and one leading 0x is allowed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newHexDecodeCommand(rootOpts))
	cmd.AddCommand(newHexEncodeCommand(rootOpts))

	return cmd
}

func newHexDecodeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [hex]",
		Short: "Write the bytes of a hex string to stdout",
		Long: `Decode a hex string and write the raw bytes to stdout.
Without an argument the hex text is read from stdin.

Examples:
  conform hex decode "48 65 6c 6c 6f"
  conform hex decode 0x0a_0b_0c | xxd`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd)

			input, err := argOrStdin(cmd, args)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to read input", err)
			}

			data, err := spec.DecodeHex(string(input))
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid hex", err)
			}

			if opts.Format == "json" {
				return formatter.Success(hexResult(data))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newHexEncodeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encode [text]",
		Short: "Print the hex form of text or stdin",
		Long: `Encode bytes as lowercase hex suitable for stdin_hex or stdout_hex.
Without an argument all of stdin is encoded, byte for byte.

Examples:
  conform hex encode "Hello"
  printf 'a\nb\n' | conform hex encode`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd)

			data, err := argOrStdin(cmd, args)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to read input", err)
			}

			if opts.Format == "json" {
				return formatter.Success(hexResult(data))
			}
			fmt.Fprintln(cmd.OutOrStdout(), spec.EncodeHex(data))
			return nil
		},
	}
}

// argOrStdin returns the single argument, or all of the command's input.
func argOrStdin(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

func hexResult(data []byte) HexResult {
	r := HexResult{Hex: spec.EncodeHex(data), Length: len(data)}
	if utf8.Valid(data) {
		r.Text = string(data)
	}
	return r
}
