package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/szibis/sparkplug-edge/internal/capture"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

type recordView struct {
	Topic      string       `json:"topic"`
	ReceivedAt *time.Time   `json:"received_at,omitempty"`
	Payload    *payloadView `json:"payload,omitempty"`
	Raw        []byte       `json:"raw,omitempty"`
}

// runReplay prints every record of a capture file as a JSON line, or with
// -publish sends them to a broker in their recorded order.
func runReplay(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	mqttCfg := brokerFlags(fs)
	logLevelFlag(fs)
	file := fs.String("file", "", "Capture file to read (required)")
	publish := fs.Bool("publish", false, "Republish the records to the broker instead of printing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	r, err := capture.Open(*file)
	if err != nil {
		return err
	}
	defer r.Close()

	var emit func(capture.Record) error
	if *publish {
		ctx := context.Background()
		tr, err := transport.DialMQTT(ctx, *mqttCfg, clientID("spbctl-replay"), nil)
		if err != nil {
			return err
		}
		defer tr.Close()
		emit = func(rec capture.Record) error {
			return tr.Publish(ctx, rec.Topic, rec.Payload)
		}
	} else {
		emit = printRecord(stdout)
	}

	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		if err := emit(rec); err != nil {
			return fmt.Errorf("record %d (%s): %w", n+1, rec.Topic, err)
		}
		n++
	}
	fmt.Fprintf(os.Stderr, "%d records (%s)\n", n, r.Compression())
	return nil
}

// printRecord renders Sparkplug payloads decoded; STATE and foreign topics
// are printed raw.
func printRecord(w io.Writer) func(capture.Record) error {
	enc := json.NewEncoder(w)
	dec := sparkplug.NewDecoder()
	return func(rec capture.Record) error {
		v := recordView{Topic: rec.Topic}
		if !rec.ReceivedAt.IsZero() {
			ts := rec.ReceivedAt.UTC()
			v.ReceivedAt = &ts
		}
		if t, err := topic.Parse(rec.Topic); err == nil && t.Type != topic.STATE {
			p, decodeErr := dec.Decode(rec.Payload)
			pv := viewPayload(p, decodeErr)
			v.Payload = &pv
		} else {
			v.Raw = rec.Payload
		}
		return enc.Encode(v)
	}
}
