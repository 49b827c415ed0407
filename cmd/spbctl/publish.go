package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/szibis/sparkplug-edge/internal/node"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

type command struct {
	group, node, device string
	rebirth             bool
	metric, datatype    string
	value               float64
}

// runPublish sends a rebirth request (NCMD) or a single metric write to a
// node (NCMD) or device (DCMD).
func runPublish(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	mqttCfg := brokerFlags(fs)
	logLevelFlag(fs)
	var cmd command
	fs.StringVar(&cmd.group, "group", "", "Sparkplug group id (required)")
	fs.StringVar(&cmd.node, "node", "", "Edge node id (required)")
	fs.StringVar(&cmd.device, "device", "", "Device id; sends DCMD when set")
	fs.BoolVar(&cmd.rebirth, "rebirth", false, "Ask the node to republish its births")
	fs.StringVar(&cmd.metric, "metric", "", "Metric to write")
	fs.StringVar(&cmd.datatype, "datatype", "Double", "Datatype of the written value")
	fs.Float64Var(&cmd.value, "value", 0, "Value to write (booleans: 0 or 1)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, payload, err := buildCommand(cmd, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), mqttCfg.ConnectTimeout+5*time.Second)
	defer cancel()
	tr, err := transport.DialMQTT(ctx, *mqttCfg, clientID("spbctl"), nil)
	if err != nil {
		return err
	}
	defer tr.Close()
	if err := tr.Publish(ctx, t, payload); err != nil {
		return err
	}
	fmt.Printf("published %d bytes to %s\n", len(payload), t)
	return nil
}

// buildCommand returns the topic and encoded payload for cmd.
func buildCommand(cmd command, now time.Time) (string, []byte, error) {
	t := topic.Node(cmd.group, topic.NCMD, cmd.node)
	if cmd.device != "" {
		t = topic.Device(cmd.group, topic.DCMD, cmd.node, cmd.device)
	}
	if err := t.Validate(); err != nil {
		return "", nil, err
	}

	enc := sparkplug.NewEncoder()
	p := enc.Reset()
	p.SetTimestamp(uint64(now.UnixMilli()))
	m, err := p.AddMetric()
	if err != nil {
		return "", nil, err
	}
	switch {
	case cmd.rebirth:
		if cmd.device != "" {
			return "", nil, fmt.Errorf("rebirth is a node command; drop -device")
		}
		if err := m.SetName(node.RebirthMetric); err != nil {
			return "", nil, err
		}
		m.SetBool(true)
	case cmd.metric != "":
		dt, err := sparkplug.ParseDataType(cmd.datatype)
		if err != nil {
			return "", nil, err
		}
		if err := m.SetName(cmd.metric); err != nil {
			return "", nil, err
		}
		m.SetDatatype(dt)
		if err := m.SetValue(dt, cmd.value); err != nil {
			return "", nil, fmt.Errorf("metric %s: %w", cmd.metric, err)
		}
	default:
		return "", nil, fmt.Errorf("one of -rebirth or -metric is required")
	}

	buf := make([]byte, 256)
	n, err := enc.Encode(buf)
	if err != nil {
		return "", nil, err
	}
	return t.String(), buf[:n], nil
}
