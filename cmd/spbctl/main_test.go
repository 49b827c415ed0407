package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/szibis/sparkplug-edge/internal/capture"
	"github.com/szibis/sparkplug-edge/internal/compression"
	"github.com/szibis/sparkplug-edge/internal/host"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
)

func TestBuildCommand(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	tests := []struct {
		name      string
		cmd       command
		wantTopic string
		wantName  string
		check     func(v sparkplug.Value) bool
	}{
		{
			name:      "rebirth",
			cmd:       command{group: "plant", node: "edge-1", rebirth: true},
			wantTopic: "spBv1.0/plant/NCMD/edge-1",
			wantName:  "Node Control/Rebirth",
			check:     func(v sparkplug.Value) bool { return v.Bool() },
		},
		{
			name:      "device write",
			cmd:       command{group: "plant", node: "edge-1", device: "pump", metric: "setpoint", datatype: "Int16", value: -12},
			wantTopic: "spBv1.0/plant/DCMD/edge-1/pump",
			wantName:  "setpoint",
			check:     func(v sparkplug.Value) bool { return v.Int32() == -12 },
		},
		{
			name:      "boolean write",
			cmd:       command{group: "plant", node: "edge-1", metric: "led", datatype: "Boolean", value: 1},
			wantTopic: "spBv1.0/plant/NCMD/edge-1",
			wantName:  "led",
			check:     func(v sparkplug.Value) bool { return v.Bool() },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, payload, err := buildCommand(tt.cmd, now)
			if err != nil {
				t.Fatalf("buildCommand() error = %v", err)
			}
			if tp != tt.wantTopic {
				t.Errorf("topic = %q, want %q", tp, tt.wantTopic)
			}
			p, err := sparkplug.NewDecoder().Decode(payload)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if p.Timestamp != 1700000000000 || p.HasSeq {
				t.Errorf("timestamp = %d, has seq = %v", p.Timestamp, p.HasSeq)
			}
			m := p.Find(tt.wantName)
			if m == nil || !tt.check(m.Value) {
				t.Errorf("metric %s missing or wrong: %+v", tt.wantName, m)
			}
		})
	}
}

func TestBuildCommandErrors(t *testing.T) {
	for _, cmd := range []command{
		{group: "plant", node: "edge-1"},
		{group: "plant", node: "edge-1", device: "pump", rebirth: true},
		{group: "plant", node: "edge-1", metric: "x", datatype: "Quaternion"},
		{group: "plant", node: "edge-1", metric: "x", datatype: "String"},
		{group: "", node: "edge-1", rebirth: true},
		{group: "plant", node: "edge-1", metric: strings.Repeat("n", sparkplug.MaxNameLen+1), datatype: "Int32"},
	} {
		if _, _, err := buildCommand(cmd, time.Now()); err == nil {
			t.Errorf("buildCommand(%+v) expected error", cmd)
		}
	}
}

func encodeSample(t *testing.T) []byte {
	t.Helper()
	enc := sparkplug.NewEncoder()
	p := enc.Reset()
	p.SetTimestamp(42)
	p.SetSeq(3)
	m, _ := p.AddMetric()
	_ = m.SetName("temp")
	m.SetAlias(7)
	m.SetFloat(21.5)
	buf := make([]byte, 128)
	n, err := enc.Encode(buf)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return buf[:n]
}

func TestDecode(t *testing.T) {
	payload := encodeSample(t)

	var out bytes.Buffer
	if err := runDecode([]string{"-hex", hex.EncodeToString(payload)}, nil, &out); err != nil {
		t.Fatalf("runDecode() error = %v", err)
	}
	var v payloadView
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if *v.Timestamp != 42 || *v.Seq != 3 || len(v.Metrics) != 1 {
		t.Fatalf("decoded = %s", out.String())
	}
	if m := v.Metrics[0]; m.Name != "temp" || *m.Alias != 7 || m.Datatype != "Float" || m.Value.(float64) != 21.5 {
		t.Errorf("metric = %+v", m)
	}

	out.Reset()
	if err := runDecode([]string{"-reference"}, bytes.NewReader(payload), &out); err != nil {
		t.Fatalf("runDecode(-reference) error = %v", err)
	}
	if !strings.Contains(out.String(), "temp") {
		t.Errorf("reference output = %s", out.String())
	}
}

func TestDecodeErrors(t *testing.T) {
	var out bytes.Buffer
	err := runDecode([]string{"-hex", "12 05"}, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "unexpected_end") {
		t.Errorf("runDecode() error = %v", err)
	}
	if !strings.Contains(out.String(), `"error"`) {
		t.Errorf("partial output = %s", out.String())
	}
	if err := runDecode([]string{"-hex", "zz"}, nil, &out); err == nil {
		t.Error("expected invalid hex error")
	}
	if err := runDecode([]string{"-hex", "00", "-file", "x"}, nil, &out); err == nil {
		t.Error("expected exclusive flag error")
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.spbcap")
	w, err := capture.Create(path, compression.Config{Type: compression.TypeSnappy})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	records := []capture.Record{
		{Topic: topic.Node("plant", topic.NBIRTH, "edge-1").String(), ReceivedAt: time.UnixMilli(1000), Payload: encodeSample(t)},
		{Topic: topic.State("scada").String(), ReceivedAt: time.UnixMilli(2000), Payload: []byte(`{"online":true,"timestamp":2000}`)},
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var out bytes.Buffer
	if err := runReplay([]string{"-file", path}, &out); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	var birth, state recordView
	if err := json.Unmarshal([]byte(lines[0]), &birth); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &state); err != nil {
		t.Fatal(err)
	}
	if birth.Payload == nil || birth.Payload.Metrics[0].Name != "temp" || !birth.ReceivedAt.Equal(time.UnixMilli(1000)) {
		t.Errorf("birth record = %s", lines[0])
	}
	if state.Payload != nil || string(state.Raw) != `{"online":true,"timestamp":2000}` {
		t.Errorf("state record = %s", lines[1])
	}

	if err := runReplay(nil, &out); err == nil {
		t.Error("expected error without -file")
	}
}

func TestPrintObservations(t *testing.T) {
	var out bytes.Buffer
	observe := printObservations(&out)
	observe(host.Observation{
		Type:      topic.DDATA,
		Node:      "edge-1",
		Device:    "pump",
		Name:      "speed",
		Datatype:  sparkplug.DataTypeDouble,
		Value:     sparkplug.DoubleValue(2.5),
		Timestamp: time.UnixMilli(1700000000000),
		Seq:       4,
	})
	var v observationView
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if v.Type != "DDATA" || v.Metric != "speed" || v.Value.(float64) != 2.5 || v.Seq != 4 || v.Datatype != "Double" {
		t.Errorf("observation = %+v", v)
	}
}

func TestRunSubcommands(t *testing.T) {
	if err := run(nil); err == nil {
		t.Error("expected error without subcommand")
	}
	if err := run([]string{"frobnicate"}); err == nil {
		t.Error("expected error for unknown subcommand")
	}
	if err := run([]string{"help"}); err != nil {
		t.Errorf("run(help) error = %v", err)
	}
}
