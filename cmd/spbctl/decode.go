package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/sparkplug/refschema"
)

// runDecode decodes one payload from -hex, -file or stdin and prints it as
// JSON. With -reference the payload is decoded against the full Sparkplug B
// schema instead of the bounded codec.
func runDecode(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	hexIn := fs.String("hex", "", "Payload as hex (spaces allowed)")
	file := fs.String("file", "", "Read the raw payload from a file")
	reference := fs.Bool("reference", false, "Decode with the full reference schema (protojson)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	buf, err := readPayload(*hexIn, *file, stdin)
	if err != nil {
		return err
	}

	if *reference {
		out, err := refschema.JSON(buf)
		if err != nil {
			return fmt.Errorf("reference decode: %w", err)
		}
		_, err = fmt.Fprintf(stdout, "%s\n", out)
		return err
	}

	p, decodeErr := sparkplug.NewDecoder().Decode(buf)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(viewPayload(p, decodeErr)); err != nil {
		return err
	}
	if decodeErr != nil {
		return fmt.Errorf("decode (%s): %w", sparkplug.Reason(decodeErr), decodeErr)
	}
	return nil
}

func readPayload(hexIn, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case hexIn != "" && file != "":
		return nil, fmt.Errorf("-hex and -file are mutually exclusive")
	case hexIn != "":
		b, err := hex.DecodeString(strings.Join(strings.Fields(hexIn), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return b, nil
	case file != "":
		return os.ReadFile(file)
	default:
		return io.ReadAll(stdin)
	}
}
