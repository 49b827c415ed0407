// Package node implements a Sparkplug B edge node: it publishes births and
// data for a set of tags and applies commands written to them.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/szibis/sparkplug-edge/internal/buffer"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

const (
	// BdSeqMetric carries the birth/death sequence in NBIRTH and NDEATH.
	BdSeqMetric = "bdSeq"
	// RebirthMetric is the node control a host writes to request births.
	RebirthMetric = "Node Control/Rebirth"

	// control metrics in every NBIRTH
	controlMetrics = 2

	inboxSize = 16
)

// ErrConfig reports an edge node configuration that can never publish.
var ErrConfig = errors.New("node: invalid configuration")

// Config configures a Node.
type Config struct {
	GroupID  string
	NodeID   string
	DeviceID string // empty publishes the tags as node metrics
	ClientID string

	Interval       time.Duration
	BufferBytes    int
	ReconnectDelay time.Duration

	Tags []TagConfig
}

// DefaultConfig returns defaults for the timing and buffer fields.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		BufferBytes:    4096,
		ReconnectDelay: 5 * time.Second,
	}
}

// WriteHandler is called for every command write applied to a tag.
type WriteHandler func(tag string, v sparkplug.Value)

// Option configures a Node.
type Option func(*Node)

// WithWriteHandler sets the handler for command writes.
func WithWriteHandler(h WriteHandler) Option {
	return func(n *Node) { n.onWrite = h }
}

// WithQueue sets the store-and-forward queue for DATA payloads that could
// not be published.
func WithQueue(q *buffer.Queue) Option {
	return func(n *Node) { n.queue = q }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// Node is a Sparkplug edge node. All state is owned by the Run goroutine;
// transport handlers only forward messages to it.
type Node struct {
	cfg     Config
	dial    transport.Dialer
	onWrite WriteHandler
	queue   *buffer.Queue
	now     func() time.Time

	enc *sparkplug.Encoder
	dec *sparkplug.Decoder
	buf []byte

	tags    []*tag
	byName  map[string]*tag
	byAlias map[uint64]*tag
	scratch []*tag

	tr    transport.Transport
	seq   uint64
	bd    uint64 // bdSeq of the current session
	bdSeq uint64 // bdSeq of the next session

	online atomic.Bool
}

// New validates cfg and returns a Node that dials with dial.
func New(cfg Config, dial transport.Dialer, opts ...Option) (*Node, error) {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = def.BufferBytes
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.ClientID == "" {
		cfg.ClientID = cfg.GroupID + "-" + cfg.NodeID
	}
	for _, id := range []string{cfg.GroupID, cfg.NodeID} {
		if err := topic.ValidateID(id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if cfg.DeviceID != "" {
		if err := topic.ValidateID(cfg.DeviceID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	limit := sparkplug.MaxMetrics
	if cfg.DeviceID == "" {
		limit -= controlMetrics
	}
	if len(cfg.Tags) > limit {
		return nil, fmt.Errorf("%w: %d tags, at most %d fit in one birth", ErrConfig, len(cfg.Tags), limit)
	}

	n := &Node{
		cfg:     cfg,
		dial:    dial,
		now:     time.Now,
		enc:     sparkplug.NewEncoder(),
		dec:     sparkplug.NewDecoder(),
		buf:     make([]byte, cfg.BufferBytes),
		byName:  make(map[string]*tag, len(cfg.Tags)),
		byAlias: make(map[uint64]*tag, len(cfg.Tags)),
	}
	for _, tc := range cfg.Tags {
		if tc.Name == "" || len(tc.Name) > sparkplug.MaxNameLen || tc.Name == BdSeqMetric || tc.Name == RebirthMetric {
			return nil, fmt.Errorf("%w: tag name %q", ErrConfig, tc.Name)
		}
		if _, dup := n.byName[tc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tag %q", ErrConfig, tc.Name)
		}
		if _, dup := n.byAlias[tc.Alias]; dup {
			return nil, fmt.Errorf("%w: duplicate alias %d", ErrConfig, tc.Alias)
		}
		var probe sparkplug.Metric
		if err := probe.SetValue(tc.Datatype, tc.Value); err != nil {
			return nil, fmt.Errorf("%w: tag %q has unsupported datatype %s", ErrConfig, tc.Name, tc.Datatype)
		}
		t := newTag(tc)
		n.tags = append(n.tags, t)
		n.byName[tc.Name] = t
		n.byAlias[tc.Alias] = t
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.queue == nil {
		n.queue = buffer.NewQueue(buffer.Config{})
	}
	return n, nil
}

// Run publishes until ctx is canceled. A lost session is redialed after
// ReconnectDelay with the next bdSeq. Run returns nil on cancellation and an
// error only when the configuration cannot be published.
func (n *Node) Run(ctx context.Context) error {
	for {
		err := n.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, sparkplug.ErrBufferFull) || errors.Is(err, sparkplug.ErrNameTooLong) {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		logging.Warn("edge node session ended", logging.F(
			"node_id", n.cfg.NodeID,
			"error", err.Error(),
			"retry_in", n.cfg.ReconnectDelay.String(),
		))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.cfg.ReconnectDelay):
		}
	}
}

func (n *Node) session(ctx context.Context) error {
	bd := n.bdSeq
	n.bd = bd
	n.bdSeq = (n.bdSeq + 1) % 256

	k, err := n.encodeDeath(bd)
	if err != nil {
		return err
	}
	will := &transport.Message{
		Topic:   n.nodeTopic(topic.NDEATH),
		Payload: append([]byte(nil), n.buf[:k]...),
		QoS:     1,
	}
	tr, err := n.dial(ctx, n.cfg.ClientID, will)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	sessionsTotal.Inc()
	n.tr = tr

	// commands are owned by the session that received them
	inbox := make(chan transport.Message, inboxSize)
	done := make(chan struct{})
	defer func() {
		n.online.Store(false)
		close(done)
		_ = tr.Close()
		n.tr = nil
	}()
	forward := func(m transport.Message) {
		m.Payload = append([]byte(nil), m.Payload...)
		select {
		case inbox <- m:
		case <-done:
		}
	}
	for _, f := range topic.CommandFilters(n.cfg.GroupID, n.cfg.NodeID) {
		if err := tr.Subscribe(ctx, f, forward); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	if err := n.publishBirths(ctx, bd); err != nil {
		return err
	}
	n.online.Store(true)
	logging.Info("edge node online", logging.F(
		"group_id", n.cfg.GroupID,
		"node_id", n.cfg.NodeID,
		"device_id", n.cfg.DeviceID,
		"bd_seq", bd,
		"tags", len(n.tags),
	))
	if err := n.drain(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.publishDeath(bd)
			return ctx.Err()
		case <-ticker.C:
			if err := n.tick(ctx); err != nil {
				return err
			}
		case msg := <-inbox:
			if err := n.handleCommand(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Online reports whether the node holds a session with its births published.
// It is safe to call from any goroutine.
func (n *Node) Online() bool { return n.online.Load() }

func (n *Node) timestamp() uint64 {
	return uint64(n.now().UnixMilli())
}

func (n *Node) nextSeq() uint64 {
	s := n.seq
	n.seq = (n.seq + 1) % 256
	return s
}

func (n *Node) nodeTopic(typ topic.MessageType) string {
	return topic.Node(n.cfg.GroupID, typ, n.cfg.NodeID).String()
}

func (n *Node) dataTopic(typ topic.MessageType) string {
	if n.cfg.DeviceID == "" {
		return n.nodeTopic(typ)
	}
	return topic.Device(n.cfg.GroupID, typ, n.cfg.NodeID, n.cfg.DeviceID).String()
}

func (n *Node) dataType() topic.MessageType {
	if n.cfg.DeviceID == "" {
		return topic.NDATA
	}
	return topic.DDATA
}

func (n *Node) encodeDeath(bd uint64) (int, error) {
	p := n.enc.Reset()
	p.SetTimestamp(n.timestamp())
	m, err := p.AddMetric()
	if err != nil {
		return 0, err
	}
	if err := m.SetName(BdSeqMetric); err != nil {
		return 0, err
	}
	m.SetInt64(int64(bd))
	return n.enc.Encode(n.buf)
}

// publishBirths publishes NBIRTH with seq 0 and, for a device, DBIRTH. Every
// tag is sent with its name, alias, datatype and current value.
func (n *Node) publishBirths(ctx context.Context, bd uint64) error {
	n.seq = 0
	p := n.enc.Reset()
	p.SetTimestamp(n.timestamp())
	p.SetSeq(n.nextSeq())

	m, err := p.AddMetric()
	if err != nil {
		return err
	}
	if err := m.SetName(BdSeqMetric); err != nil {
		return err
	}
	m.SetInt64(int64(bd))
	if m, err = p.AddMetric(); err != nil {
		return err
	}
	if err := m.SetName(RebirthMetric); err != nil {
		return err
	}
	m.SetBool(false)

	if n.cfg.DeviceID == "" {
		if err := n.addTags(p, n.tags, true); err != nil {
			return err
		}
	}
	if err := n.encodeAndPublish(ctx, topic.NBIRTH, n.nodeTopic(topic.NBIRTH)); err != nil {
		return err
	}
	if n.cfg.DeviceID == "" {
		return nil
	}

	p = n.enc.Reset()
	p.SetTimestamp(n.timestamp())
	p.SetSeq(n.nextSeq())
	if err := n.addTags(p, n.tags, true); err != nil {
		return err
	}
	return n.encodeAndPublish(ctx, topic.DBIRTH, n.dataTopic(topic.DBIRTH))
}

func (n *Node) addTags(p *sparkplug.Payload, tags []*tag, birth bool) error {
	ts := n.timestamp()
	for _, t := range tags {
		m, err := p.AddMetric()
		if err != nil {
			return err
		}
		if err := t.fill(m, birth, ts); err != nil {
			return err
		}
		t.changed = false
	}
	return nil
}

// tick advances the tag generators and publishes the changed tags.
func (n *Node) tick(ctx context.Context) error {
	n.scratch = n.scratch[:0]
	for _, t := range n.tags {
		if t.advance() {
			n.scratch = append(n.scratch, t)
		}
	}
	if err := n.publishData(ctx, n.scratch); err != nil {
		return err
	}
	if n.queue.Len() > 0 {
		return n.drain(ctx)
	}
	return nil
}

func (n *Node) publishData(ctx context.Context, tags []*tag) error {
	if len(tags) == 0 {
		return nil
	}
	p := n.enc.Reset()
	p.SetTimestamp(n.timestamp())
	p.SetSeq(n.nextSeq())
	if err := n.addTags(p, tags, false); err != nil {
		return err
	}
	typ := n.dataType()
	return n.encodeAndPublish(ctx, typ, n.dataTopic(typ))
}

func (n *Node) encodeAndPublish(ctx context.Context, typ topic.MessageType, t string) error {
	k, err := n.enc.Encode(n.buf)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	if err := n.tr.Publish(ctx, t, n.buf[:k]); err != nil {
		publishFailuresTotal.WithLabelValues(string(typ)).Inc()
		if typ.IsData() {
			if qerr := n.queue.Push(t, n.buf[:k]); qerr != nil {
				logging.Error("store and forward: payload dropped", logging.F(
					"topic", t,
					"error", qerr.Error(),
				))
			}
		}
		return fmt.Errorf("publish %s: %w", t, err)
	}
	payloadsPublishedTotal.WithLabelValues(string(typ)).Inc()
	bytesPublishedTotal.Add(float64(k))
	return nil
}

// drain forwards stored DATA payloads in order.
func (n *Node) drain(ctx context.Context) error {
	if n.queue.Len() == 0 {
		return nil
	}
	sent, err := n.queue.Drain(ctx, func(ctx context.Context, e buffer.Entry) error {
		return n.tr.Publish(ctx, e.Topic, e.Data)
	})
	if sent > 0 {
		logging.Info("store and forward: drained", logging.F("payloads", sent, "remaining", n.queue.Len()))
	}
	if err != nil {
		return fmt.Errorf("store and forward drain: %w", err)
	}
	return nil
}

// publishDeath announces a graceful shutdown; the broker discards the will
// on a clean disconnect.
func (n *Node) publishDeath(bd uint64) {
	k, err := n.encodeDeath(bd)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.tr.Publish(ctx, n.nodeTopic(topic.NDEATH), n.buf[:k]); err != nil {
		publishFailuresTotal.WithLabelValues(string(topic.NDEATH)).Inc()
		logging.Warn("edge node death not published", logging.F("error", err.Error()))
		return
	}
	payloadsPublishedTotal.WithLabelValues(string(topic.NDEATH)).Inc()
	logging.Info("edge node offline", logging.F("node_id", n.cfg.NodeID, "bd_seq", bd))
}

// handleCommand applies an NCMD or DCMD. Malformed commands are logged and
// dropped; only a failure to publish the response ends the session.
func (n *Node) handleCommand(ctx context.Context, msg transport.Message) error {
	t, err := topic.Parse(msg.Topic)
	if err != nil || !t.Type.IsCommand() {
		logging.Warn("ignoring message on command subscription", logging.F("topic", msg.Topic))
		return nil
	}
	p, err := n.dec.Decode(msg.Payload)
	if err != nil {
		commandsTotal.WithLabelValues("decode_error").Inc()
		logging.Warn("command payload rejected", logging.F(
			"topic", msg.Topic,
			"reason", sparkplug.Reason(err),
			"error", err.Error(),
		))
		return nil
	}

	if t.Type == topic.NCMD {
		if m := p.Find(RebirthMetric); m != nil && m.Value.Kind() == sparkplug.ValueBool && m.Value.Bool() {
			commandsTotal.WithLabelValues("rebirth").Inc()
			rebirthsTotal.Inc()
			logging.Info("rebirth requested", logging.F("node_id", n.cfg.NodeID))
			return n.publishBirths(ctx, n.bd)
		}
	}

	ownTags := (t.Type == topic.NCMD && n.cfg.DeviceID == "") ||
		(t.Type == topic.DCMD && n.cfg.DeviceID != "" && t.Device == n.cfg.DeviceID)
	if !ownTags {
		return nil
	}

	n.scratch = n.scratch[:0]
	for i := range p.Metrics() {
		m := p.Metric(i)
		if m.HasName && (m.Name.Equal(RebirthMetric) || m.Name.Equal(BdSeqMetric)) {
			continue
		}
		tg := n.lookup(m)
		v, ok := m.Value.Float64()
		if tg == nil || !tg.cfg.Writable || !ok {
			commandsTotal.WithLabelValues("rejected").Inc()
			logging.Warn("command write rejected", logging.F(
				"topic", msg.Topic,
				"metric", m.Name.String(),
				"alias", m.Alias,
			))
			continue
		}
		tg.set(v)
		commandsTotal.WithLabelValues("written").Inc()
		if n.onWrite != nil {
			n.onWrite(tg.cfg.Name, tg.current())
		}
		n.scratch = append(n.scratch, tg)
	}
	return n.publishData(ctx, n.scratch)
}

func (n *Node) lookup(m *sparkplug.Metric) *tag {
	if m.HasName {
		return n.byName[m.Name.String()]
	}
	if m.HasAlias {
		return n.byAlias[m.Alias]
	}
	return nil
}
