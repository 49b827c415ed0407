package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/szibis/sparkplug-edge/internal/capture"
	"github.com/szibis/sparkplug-edge/internal/compression"
	"github.com/szibis/sparkplug-edge/internal/host"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

type observationView struct {
	Type      string      `json:"type"`
	Node      string      `json:"node"`
	Device    string      `json:"device,omitempty"`
	Metric    string      `json:"metric"`
	Datatype  string      `json:"datatype"`
	Value     interface{} `json:"value,omitempty"`
	Null      bool        `json:"null,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	Seq       uint64      `json:"seq"`
}

// runWatch follows a group as a host application and prints every resolved
// metric as a JSON line. With -capture every raw message is also recorded.
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	mqttCfg := brokerFlags(fs)
	logLevelFlag(fs)
	group := fs.String("group", "", "Sparkplug group id (required)")
	hostID := fs.String("host-id", "", "Publish STATE as this host id")
	capturePath := fs.String("capture", "", "Record raw messages to this capture file")
	compressionType := fs.String("compression", "zstd", "Capture compression: none, gzip, zstd, snappy, zlib, deflate, lz4")
	duration := fs.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	cooldown := fs.Duration("rebirth-cooldown", host.DefaultConfig().RebirthCooldown, "Minimum time between rebirth requests to one node")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	opts := []host.Option{host.WithObserver(printObservations(os.Stdout))}
	if *capturePath != "" {
		ct, err := compression.ParseType(*compressionType)
		if err != nil {
			return err
		}
		w, err := capture.Create(*capturePath, compression.Config{Type: ct, Level: compression.LevelDefault})
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logging.Error("capture not closed cleanly", logging.F("path", *capturePath, "error", err.Error()))
			}
		}()
		opts = append(opts, host.WithTap(captureTap(w)))
	}

	h, err := host.New(host.Config{
		GroupID:         *group,
		HostID:          *hostID,
		ClientID:        clientID("spbctl-watch"),
		RebirthCooldown: *cooldown,
	}, transport.MQTTDialer(*mqttCfg), opts...)
	if err != nil {
		return err
	}
	return h.Run(ctx)
}

// printObservations returns an observer writing JSON lines to w.
func printObservations(w io.Writer) host.Observer {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(o host.Observation) {
		v := observationView{
			Type:     string(o.Type),
			Node:     o.Node,
			Device:   o.Device,
			Metric:   o.Name,
			Datatype: o.Datatype.String(),
			Null:     o.Null,
			Seq:      o.Seq,
		}
		if !o.Value.Absent() {
			v.Value = o.Value.Interface()
		}
		if !o.Timestamp.IsZero() {
			ts := o.Timestamp.UTC()
			v.Timestamp = &ts
		}
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(v); err != nil {
			logging.Warn("observation not written", logging.F("error", err.Error()))
		}
	}
}

func captureTap(w *capture.Writer) func(transport.Message) {
	return func(m transport.Message) {
		err := w.Write(capture.Record{Topic: m.Topic, ReceivedAt: time.Now(), Payload: m.Payload})
		if err != nil {
			logging.Warn("message not captured", logging.F("topic", m.Topic, "error", err.Error()))
		}
	}
}
