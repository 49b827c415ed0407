package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.Counter.GetValue()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	t      *testing.T
	broker *transport.Broker
	host   *Host
	edge   *transport.MemoryClient
	obs    chan Observation
	cmds   chan []byte
	stop   func()
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		t:      t,
		broker: transport.NewBroker(),
		obs:    make(chan Observation, 256),
		cmds:   make(chan []byte, 16),
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "plant"
	}
	host, err := New(cfg, h.broker.Dialer(), WithObserver(func(o Observation) { h.obs <- o }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.host = host

	edge, err := h.broker.Dial(ctx, "edge-1", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	h.edge = edge
	ncmd := topic.Node("plant", topic.NCMD, "edge-1").String()
	if err := edge.Subscribe(ctx, ncmd, func(m transport.Message) { h.cmds <- m.Payload }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- host.Run(runCtx) }()
	eventually(t, "host subscription", func() bool { return h.broker.Subscriptions() == 2 })

	h.stop = func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		_ = edge.Close()
	}
	return h
}

func (h *harness) publish(typ topic.MessageType, device string, fill func(p *sparkplug.Payload)) {
	h.t.Helper()
	enc := sparkplug.NewEncoder()
	p := enc.Reset()
	p.SetTimestamp(1700000000000)
	fill(p)
	buf := make([]byte, 512)
	k, err := enc.Encode(buf)
	if err != nil {
		h.t.Fatalf("Encode() error = %v", err)
	}
	tp := topic.Node("plant", typ, "edge-1")
	if device != "" {
		tp = topic.Device("plant", typ, "edge-1", device)
	}
	if err := h.edge.Publish(context.Background(), tp.String(), buf[:k]); err != nil {
		h.t.Fatalf("Publish() error = %v", err)
	}
}

func (h *harness) nextObservation() Observation {
	h.t.Helper()
	select {
	case o := <-h.obs:
		return o
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for observation")
	}
	return Observation{}
}

func (h *harness) expectRebirth() {
	h.t.Helper()
	select {
	case b := <-h.cmds:
		p, err := sparkplug.NewDecoder().Decode(b)
		if err != nil {
			h.t.Fatalf("Decode(NCMD) error = %v", err)
		}
		if m := p.Find(rebirthMetric); m == nil || !m.Value.Bool() {
			h.t.Fatalf("NCMD is not a rebirth request")
		}
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for rebirth request")
	}
}

func birth(bd int64, seq uint64) func(p *sparkplug.Payload) {
	return func(p *sparkplug.Payload) {
		p.SetSeq(seq)
		m, _ := p.AddMetric()
		_ = m.SetName(bdSeqMetric)
		m.SetInt64(bd)
		m, _ = p.AddMetric()
		_ = m.SetName("temp")
		m.SetAlias(5)
		m.SetInt32(-4)
	}
}

func TestHost_ResolvesAliases(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	h.publish(topic.NBIRTH, "", birth(3, 0))
	if o := h.nextObservation(); o.Name != bdSeqMetric {
		t.Fatalf("first observation = %+v", o)
	}
	temp := h.nextObservation()
	if temp.Name != "temp" || temp.Value.Int32() != -4 || temp.Type != topic.NBIRTH {
		t.Errorf("birth observation = %+v", temp)
	}

	h.publish(topic.NDATA, "", func(p *sparkplug.Payload) {
		p.SetSeq(1)
		m, _ := p.AddMetric()
		m.SetAlias(5)
		// no datatype: decoded unsigned, resolved from the birth
		m.Value = sparkplug.Int32Value(-7)
	})
	o := h.nextObservation()
	if o.Name != "temp" || o.Datatype != sparkplug.DataTypeInt32 || o.Value.Kind() != sparkplug.ValueInt32 || o.Value.Int32() != -7 {
		t.Errorf("data observation = %+v", o)
	}
	if !o.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("observation timestamp = %v", o.Timestamp)
	}

	nodes := h.host.Nodes()
	if len(nodes) != 1 || !nodes[0].Online || nodes[0].BdSeq != 3 || nodes[0].Seq != 1 || nodes[0].Metrics != 1 {
		t.Errorf("Nodes() = %+v", nodes)
	}
}

func TestHost_SeqGapRequestsRebirth(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	before := counterValue(seqGapsTotal)
	h.publish(topic.NBIRTH, "", birth(0, 0))
	h.publish(topic.NDATA, "", func(p *sparkplug.Payload) {
		p.SetSeq(2)
		m, _ := p.AddMetric()
		m.SetAlias(5)
		m.SetInt32(1)
	})
	h.expectRebirth()
	if got := counterValue(seqGapsTotal) - before; got != 1 {
		t.Errorf("seq gaps delta = %v, want 1", got)
	}
}

func TestHost_DataBeforeBirth(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	h.publish(topic.NDATA, "", func(p *sparkplug.Payload) {
		p.SetSeq(9)
		m, _ := p.AddMetric()
		m.SetAlias(5)
		m.SetInt32(1)
	})
	h.expectRebirth()

	// a second stale message within the cooldown does not ask again
	h.publish(topic.NDATA, "", func(p *sparkplug.Payload) { p.SetSeq(10) })
	select {
	case <-h.cmds:
		t.Error("rebirth requested twice within cooldown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHost_UnknownAlias(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	h.publish(topic.NBIRTH, "", birth(0, 0))
	h.publish(topic.NDATA, "", func(p *sparkplug.Payload) {
		p.SetSeq(1)
		m, _ := p.AddMetric()
		m.SetAlias(99)
		m.SetInt32(1)
	})
	h.expectRebirth()
}

func TestHost_DeviceLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	h.publish(topic.NBIRTH, "", birth(0, 0))
	h.publish(topic.DBIRTH, "pump", func(p *sparkplug.Payload) {
		p.SetSeq(1)
		m, _ := p.AddMetric()
		_ = m.SetName("speed")
		m.SetAlias(1)
		m.SetDouble(1.5)
	})
	h.publish(topic.DDATA, "pump", func(p *sparkplug.Payload) {
		p.SetSeq(2)
		m, _ := p.AddMetric()
		m.SetAlias(1)
		m.SetDouble(2.5)
	})

	var last Observation
	for last.Type != topic.DDATA {
		last = h.nextObservation()
	}
	if last.Device != "pump" || last.Name != "speed" || last.Value.Double() != 2.5 {
		t.Errorf("device observation = %+v", last)
	}
	eventually(t, "device online", func() bool {
		n := h.host.Nodes()
		return len(n) == 1 && len(n[0].Devices) == 1 && n[0].Devices[0] == "pump"
	})

	h.publish(topic.DDEATH, "pump", func(p *sparkplug.Payload) { p.SetSeq(3) })
	eventually(t, "device offline", func() bool {
		n := h.host.Nodes()
		return len(n) == 1 && len(n[0].Devices) == 0
	})
}

func TestHost_Death(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	h.publish(topic.NBIRTH, "", birth(3, 0))
	eventually(t, "node online", func() bool {
		n := h.host.Nodes()
		return len(n) == 1 && n[0].Online
	})

	death := func(bd int64) func(p *sparkplug.Payload) {
		return func(p *sparkplug.Payload) {
			m, _ := p.AddMetric()
			_ = m.SetName(bdSeqMetric)
			m.SetInt64(bd)
		}
	}
	// will of an older session
	h.publish(topic.NDEATH, "", death(2))
	h.publish(topic.NDEATH, "", death(3))
	eventually(t, "node offline", func() bool {
		n := h.host.Nodes()
		return len(n) == 1 && !n[0].Online && n[0].BdSeq == 3
	})
}

func TestHost_DecodeFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{})
	defer h.stop()

	c := decodeFailuresTotal.WithLabelValues("unexpected_end")
	before := counterValue(c)
	ndata := topic.Node("plant", topic.NDATA, "edge-1").String()
	if err := h.edge.Publish(context.Background(), ndata, []byte{0x12, 0x05}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	eventually(t, "decode failure counted", func() bool { return counterValue(c)-before == 1 })
}

func TestHost_State(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Config{HostID: "scada"})

	stateTopic := topic.State("scada").String()
	var st statePayload
	eventually(t, "STATE online", func() bool {
		m, ok := h.broker.Retained(stateTopic)
		return ok && json.Unmarshal(m.Payload, &st) == nil && st.Online
	})
	h.stop()
	m, ok := h.broker.Retained(stateTopic)
	if !ok || json.Unmarshal(m.Payload, &st) != nil || st.Online {
		t.Errorf("STATE after shutdown = %s", m.Payload)
	}
}

func TestNew_Errors(t *testing.T) {
	for _, cfg := range []Config{{GroupID: ""}, {GroupID: "a/b"}, {GroupID: "g", HostID: "#"}} {
		if _, err := New(cfg, nil); !errors.Is(err, ErrConfig) {
			t.Errorf("New(%+v) error = %v, want %v", cfg, err, ErrConfig)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   sparkplug.Value
		dt   sparkplug.DataType
		want interface{}
	}{
		{sparkplug.UInt32Value(0xFFFFFFFF), sparkplug.DataTypeInt16, int32(-1)},
		{sparkplug.UInt64Value(1 << 63), sparkplug.DataTypeInt64, int64(-1 << 63)},
		{sparkplug.UInt32Value(7), sparkplug.DataTypeUInt32, uint32(7)},
		{sparkplug.DoubleValue(1.5), sparkplug.DataTypeInt32, 1.5},
	}
	for _, tt := range tests {
		if got := coerce(tt.in, tt.dt).Interface(); got != tt.want {
			t.Errorf("coerce(%v, %s) = %v, want %v", tt.in.Interface(), tt.dt, got, tt.want)
		}
	}
}
