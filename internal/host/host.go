// Package host implements a Sparkplug B host application. It follows the
// births, data and deaths of every edge node in a group, resolves aliases
// to metric names and asks nodes to rebirth when its view is stale.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/szibis/sparkplug-edge/internal/intern"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

const (
	bdSeqMetric   = "bdSeq"
	rebirthMetric = "Node Control/Rebirth"

	inboxSize = 64
)

// ErrConfig reports an invalid host configuration.
var ErrConfig = errors.New("host: invalid configuration")

// Config configures a Host.
type Config struct {
	GroupID  string
	HostID   string // publishes STATE when set
	ClientID string

	// RebirthCooldown is the minimum time between two rebirth requests to
	// the same node.
	RebirthCooldown time.Duration
	BufferBytes     int
}

// DefaultConfig returns defaults for the timing and buffer fields.
func DefaultConfig() Config {
	return Config{
		RebirthCooldown: 5 * time.Second,
		BufferBytes:     256,
	}
}

// Observation is one metric value seen in a birth or data message.
type Observation struct {
	Type       topic.MessageType
	Node       string
	Device     string
	Name       string
	Alias      uint64
	Datatype   sparkplug.DataType
	Value      sparkplug.Value
	Timestamp  time.Time
	Seq        uint64
	Historical bool
	Null       bool
}

// Observer receives observations on the host goroutine.
type Observer func(Observation)

// Option configures a Host.
type Option func(*Host)

// WithObserver sets the observation callback. The observer runs with the
// node table locked and must not call Nodes.
func WithObserver(o Observer) Option {
	return func(h *Host) { h.observe = o }
}

// WithTap receives every raw message before it is decoded.
func WithTap(tap func(transport.Message)) Option {
	return func(h *Host) { h.tap = tap }
}

// WithClock overrides the time source used for rebirth cooldowns and STATE.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

type metricInfo struct {
	name     string
	datatype sparkplug.DataType
}

type deviceState struct {
	online  bool
	aliases map[uint64]metricInfo
}

type nodeState struct {
	online      bool
	bdSeq       uint64
	seq         uint64
	aliases     map[uint64]metricInfo
	devices     map[string]*deviceState
	lastRebirth time.Time
}

// NodeStatus is a snapshot of one edge node.
type NodeStatus struct {
	Node    string
	Online  bool
	BdSeq   uint64
	Seq     uint64
	Metrics int
	Devices []string
}

// Host is a Sparkplug host application for one group.
type Host struct {
	cfg     Config
	dial    transport.Dialer
	observe Observer
	tap     func(transport.Message)
	now     func() time.Time

	dec *sparkplug.Decoder
	enc *sparkplug.Encoder
	buf []byte

	mu    sync.Mutex
	nodes map[string]*nodeState

	tr transport.Transport
}

// New validates cfg and returns a Host that dials with dial.
func New(cfg Config, dial transport.Dialer, opts ...Option) (*Host, error) {
	def := DefaultConfig()
	if cfg.RebirthCooldown <= 0 {
		cfg.RebirthCooldown = def.RebirthCooldown
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = def.BufferBytes
	}
	if err := topic.ValidateID(cfg.GroupID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.HostID != "" {
		if err := topic.ValidateID(cfg.HostID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = cfg.GroupID + "-host"
		if cfg.HostID != "" {
			cfg.ClientID = cfg.HostID
		}
	}
	h := &Host{
		cfg:   cfg,
		dial:  dial,
		now:   time.Now,
		dec:   sparkplug.NewDecoder(),
		enc:   sparkplug.NewEncoder(),
		buf:   make([]byte, cfg.BufferBytes),
		nodes: make(map[string]*nodeState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type statePayload struct {
	Online    bool  `json:"online"`
	Timestamp int64 `json:"timestamp"`
}

func (h *Host) state(online bool) []byte {
	b, _ := json.Marshal(statePayload{Online: online, Timestamp: h.now().UnixMilli()})
	return b
}

// Run connects, subscribes to the group and processes messages until ctx is
// canceled.
func (h *Host) Run(ctx context.Context) error {
	var will *transport.Message
	if h.cfg.HostID != "" {
		will = &transport.Message{Topic: topic.State(h.cfg.HostID).String(), Payload: h.state(false), QoS: 1, Retained: true}
	}
	tr, err := h.dial(ctx, h.cfg.ClientID, will)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	h.tr = tr

	inbox := make(chan transport.Message, inboxSize)
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = tr.Close()
	}()
	forward := func(m transport.Message) {
		m.Payload = append([]byte(nil), m.Payload...)
		select {
		case inbox <- m:
		case <-done:
		}
	}
	if err := tr.Subscribe(ctx, topic.GroupFilter(h.cfg.GroupID), forward); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if h.cfg.HostID != "" {
		if err := tr.PublishMessage(ctx, *h.stateMessage(true)); err != nil {
			return fmt.Errorf("publish state: %w", err)
		}
	}
	logging.Info("host application online", logging.F("group_id", h.cfg.GroupID, "host_id", h.cfg.HostID))

	for {
		select {
		case <-ctx.Done():
			if h.cfg.HostID != "" {
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = tr.PublishMessage(sctx, *h.stateMessage(false))
				cancel()
			}
			logging.Info("host application offline", logging.F("group_id", h.cfg.GroupID))
			return nil
		case msg := <-inbox:
			h.process(ctx, msg)
		}
	}
}

func (h *Host) stateMessage(online bool) *transport.Message {
	return &transport.Message{Topic: topic.State(h.cfg.HostID).String(), Payload: h.state(online), QoS: 1, Retained: true}
}

// Nodes returns a snapshot of every node seen, ordered by id.
func (h *Host) Nodes() []NodeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]NodeStatus, 0, len(h.nodes))
	for id, n := range h.nodes {
		s := NodeStatus{Node: id, Online: n.online, BdSeq: n.bdSeq, Seq: n.seq, Metrics: len(n.aliases)}
		for d, ds := range n.devices {
			if ds.online {
				s.Devices = append(s.Devices, d)
			}
		}
		sort.Strings(s.Devices)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func (h *Host) process(ctx context.Context, msg transport.Message) {
	if h.tap != nil {
		h.tap(msg)
	}
	t, err := topic.Parse(msg.Topic)
	if err != nil {
		messagesTotal.WithLabelValues("invalid").Inc()
		logging.Debug("ignoring non-sparkplug topic", logging.F("topic", msg.Topic))
		return
	}
	messagesTotal.WithLabelValues(string(t.Type)).Inc()
	if t.Type == topic.STATE || t.Type.IsCommand() {
		return
	}

	p, err := h.dec.Decode(msg.Payload)
	if err != nil {
		reason := sparkplug.Reason(err)
		decodeFailuresTotal.WithLabelValues(reason).Inc()
		logging.Warn("payload rejected", logging.F(
			"topic", msg.Topic,
			"reason", reason,
			"error", err.Error(),
		))
		return
	}

	h.mu.Lock()
	rebirth := h.apply(t, p)
	h.mu.Unlock()
	if rebirth {
		h.requestRebirth(ctx, t.Node)
	}
}

// apply updates node state from one decoded message and emits observations.
// It reports whether the node must be asked to rebirth. Called with h.mu held.
func (h *Host) apply(t topic.Topic, p *sparkplug.Payload) bool {
	n := h.nodes[t.Node]

	switch t.Type {
	case topic.NBIRTH:
		if n == nil {
			n = &nodeState{}
			h.nodes[t.Node] = n
		}
		n.online = true
		n.seq = p.Seq
		n.aliases = make(map[uint64]metricInfo, p.Len())
		n.devices = make(map[string]*deviceState)
		if m := p.Find(bdSeqMetric); m != nil {
			v, _ := m.Value.Float64()
			n.bdSeq = uint64(v)
		}
		learnAliases(n.aliases, p)
		h.updateOnline()
		logging.Info("node birth", logging.F("node_id", t.Node, "bd_seq", n.bdSeq, "metrics", p.Len()))
		h.emit(t, p, n.aliases)
		return false

	case topic.NDEATH:
		if n == nil || !n.online {
			return false
		}
		if m := p.Find(bdSeqMetric); m != nil {
			v, _ := m.Value.Float64()
			if uint64(v) != n.bdSeq {
				logging.Debug("ignoring stale death", logging.F("node_id", t.Node, "bd_seq", uint64(v), "current", n.bdSeq))
				return false
			}
		}
		n.online = false
		for _, d := range n.devices {
			d.online = false
		}
		h.updateOnline()
		logging.Info("node death", logging.F("node_id", t.Node, "bd_seq", n.bdSeq))
		return false
	}

	// everything else needs a live birth
	if n == nil || !n.online {
		staleMessagesTotal.Inc()
		return true
	}
	gap := h.checkSeq(t, n, p)

	switch t.Type {
	case topic.DBIRTH:
		d := &deviceState{online: true, aliases: make(map[uint64]metricInfo, p.Len())}
		n.devices[t.Device] = d
		learnAliases(d.aliases, p)
		h.emit(t, p, d.aliases)
		return gap

	case topic.DDEATH:
		if d := n.devices[t.Device]; d != nil {
			d.online = false
		}
		return gap

	case topic.NDATA:
		return h.emit(t, p, n.aliases) || gap

	case topic.DDATA:
		d := n.devices[t.Device]
		if d == nil || !d.online {
			staleMessagesTotal.Inc()
			return true
		}
		return h.emit(t, p, d.aliases) || gap
	}
	return false
}

// checkSeq advances the node sequence and reports a gap.
func (h *Host) checkSeq(t topic.Topic, n *nodeState, p *sparkplug.Payload) bool {
	if !p.HasSeq {
		return false
	}
	want := (n.seq + 1) % 256
	n.seq = p.Seq
	if p.Seq == want {
		return false
	}
	seqGapsTotal.Inc()
	logging.Warn("sequence gap", logging.F(
		"node_id", t.Node,
		"type", string(t.Type),
		"expected", want,
		"got", p.Seq,
	))
	return true
}

func learnAliases(dst map[uint64]metricInfo, p *sparkplug.Payload) {
	for _, m := range p.Metrics() {
		if m.HasName && m.HasAlias {
			dst[m.Alias] = metricInfo{name: intern.MetricNames.InternBytes(m.Name.Bytes()), datatype: m.Datatype}
		}
	}
}

// emit resolves metric names and calls the observer. It reports whether an
// alias was unknown.
func (h *Host) emit(t topic.Topic, p *sparkplug.Payload, aliases map[uint64]metricInfo) bool {
	unknown := false
	for i := range p.Metrics() {
		m := p.Metric(i)
		o := Observation{
			Type:       t.Type,
			Node:       t.Node,
			Device:     t.Device,
			Alias:      m.Alias,
			Datatype:   m.Datatype,
			Value:      m.Value,
			Seq:        p.Seq,
			Historical: m.IsHistorical,
			Null:       m.IsNull,
		}
		switch {
		case m.HasName:
			o.Name = intern.MetricNames.InternBytes(m.Name.Bytes())
		case m.HasAlias:
			info, ok := aliases[m.Alias]
			if !ok {
				unknown = true
				continue
			}
			o.Name = info.name
			if !m.HasDatatype {
				o.Datatype = info.datatype
				o.Value = coerce(m.Value, info.datatype)
			}
		default:
			continue
		}
		switch {
		case m.HasTimestamp:
			o.Timestamp = time.UnixMilli(int64(m.Timestamp))
		case p.HasTimestamp:
			o.Timestamp = time.UnixMilli(int64(p.Timestamp))
		}
		observationsTotal.Inc()
		if h.observe != nil {
			h.observe(o)
		}
	}
	return unknown
}

// coerce reinterprets an integer decoded without a datatype using the
// datatype announced in the birth.
func coerce(v sparkplug.Value, dt sparkplug.DataType) sparkplug.Value {
	switch {
	case v.Kind() == sparkplug.ValueUInt32 && dt.Signed() && dt != sparkplug.DataTypeInt64:
		return sparkplug.Int32Value(int32(v.UInt32()))
	case v.Kind() == sparkplug.ValueUInt64 && dt == sparkplug.DataTypeInt64:
		return sparkplug.Int64Value(int64(v.UInt64()))
	}
	return v
}

func (h *Host) updateOnline() {
	online := 0
	for _, n := range h.nodes {
		if n.online {
			online++
		}
	}
	nodesOnline.Set(float64(online))
}

// requestRebirth publishes NCMD Node Control/Rebirth=true, at most once per
// cooldown per node.
func (h *Host) requestRebirth(ctx context.Context, node string) {
	now := h.now()
	h.mu.Lock()
	n := h.nodes[node]
	if n == nil {
		n = &nodeState{}
		h.nodes[node] = n
	}
	if !n.lastRebirth.IsZero() && now.Sub(n.lastRebirth) < h.cfg.RebirthCooldown {
		h.mu.Unlock()
		return
	}
	n.lastRebirth = now
	h.mu.Unlock()

	p := h.enc.Reset()
	p.SetTimestamp(uint64(now.UnixMilli()))
	m, _ := p.AddMetric()
	_ = m.SetName(rebirthMetric)
	m.SetBool(true)
	k, err := h.enc.Encode(h.buf)
	if err != nil {
		logging.Error("rebirth request not encoded", logging.F("error", err.Error()))
		return
	}
	t := topic.Node(h.cfg.GroupID, topic.NCMD, node).String()
	if err := h.tr.Publish(ctx, t, h.buf[:k]); err != nil {
		logging.Warn("rebirth request failed", logging.F("node_id", node, "error", err.Error()))
		return
	}
	rebirthRequestsTotal.Inc()
	logging.Info("rebirth requested", logging.F("node_id", node))
}
