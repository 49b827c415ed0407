// Package topic builds and parses Sparkplug B topic names:
//
//	spBv1.0/<group_id>/<message_type>/<edge_node_id>[/<device_id>]
//	spBv1.0/STATE/<host_id>
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Namespace is the Sparkplug B topic namespace element.
const Namespace = "spBv1.0"

var (
	ErrInvalidNamespace   = errors.New("topic: not a Sparkplug B topic")
	ErrInvalidTopic       = errors.New("topic: malformed topic")
	ErrUnknownMessageType = errors.New("topic: unknown message type")
	ErrInvalidID          = errors.New("topic: invalid id")
)

// MessageType is the Sparkplug verb in a topic.
type MessageType string

const (
	NBIRTH MessageType = "NBIRTH"
	NDEATH MessageType = "NDEATH"
	DBIRTH MessageType = "DBIRTH"
	DDEATH MessageType = "DDEATH"
	NDATA  MessageType = "NDATA"
	DDATA  MessageType = "DDATA"
	NCMD   MessageType = "NCMD"
	DCMD   MessageType = "DCMD"
	STATE  MessageType = "STATE"
)

// ParseMessageType validates s as a message type.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case NBIRTH, NDEATH, DBIRTH, DDEATH, NDATA, DDATA, NCMD, DCMD, STATE:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
}

// IsDevice reports whether the type addresses a device under a node.
func (t MessageType) IsDevice() bool {
	return t == DBIRTH || t == DDEATH || t == DDATA || t == DCMD
}

func (t MessageType) IsBirth() bool   { return t == NBIRTH || t == DBIRTH }
func (t MessageType) IsDeath() bool   { return t == NDEATH || t == DDEATH }
func (t MessageType) IsData() bool    { return t == NDATA || t == DDATA }
func (t MessageType) IsCommand() bool { return t == NCMD || t == DCMD }

// Topic is a parsed Sparkplug topic. For STATE topics only HostID is set.
type Topic struct {
	Group  string
	Type   MessageType
	Node   string
	Device string
	HostID string
}

// Node returns a node-level topic.
func Node(group string, typ MessageType, node string) Topic {
	return Topic{Group: group, Type: typ, Node: node}
}

// Device returns a device-level topic.
func Device(group string, typ MessageType, node, device string) Topic {
	return Topic{Group: group, Type: typ, Node: node, Device: device}
}

// State returns the STATE topic of a host application.
func State(hostID string) Topic {
	return Topic{Type: STATE, HostID: hostID}
}

func (t Topic) String() string {
	if t.Type == STATE {
		return Namespace + "/STATE/" + t.HostID
	}
	var b strings.Builder
	b.Grow(len(Namespace) + len(t.Group) + len(t.Type) + len(t.Node) + len(t.Device) + 4)
	b.WriteString(Namespace)
	b.WriteByte('/')
	b.WriteString(t.Group)
	b.WriteByte('/')
	b.WriteString(string(t.Type))
	b.WriteByte('/')
	b.WriteString(t.Node)
	if t.Device != "" {
		b.WriteByte('/')
		b.WriteString(t.Device)
	}
	return b.String()
}

// Validate checks the ids and that device types carry a device id.
func (t Topic) Validate() error {
	if t.Type == STATE {
		return ValidateID(t.HostID)
	}
	if _, err := ParseMessageType(string(t.Type)); err != nil {
		return err
	}
	if err := ValidateID(t.Group); err != nil {
		return err
	}
	if err := ValidateID(t.Node); err != nil {
		return err
	}
	if t.Type.IsDevice() {
		return ValidateID(t.Device)
	}
	if t.Device != "" {
		return fmt.Errorf("%w: %s does not take a device id", ErrInvalidTopic, t.Type)
	}
	return nil
}

// ValidateID checks a group, node, device or host id. Ids are non-empty and
// must not contain topic separators or wildcards.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains '/', '+' or '#'", ErrInvalidID, id)
	}
	return nil
}

// Parse parses a Sparkplug B topic name.
func Parse(s string) (Topic, error) {
	parts := strings.Split(s, "/")
	if parts[0] != Namespace {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, s)
	}
	if len(parts) == 3 && parts[1] == string(STATE) {
		t := State(parts[2])
		if err := t.Validate(); err != nil {
			return Topic{}, err
		}
		return t, nil
	}
	if len(parts) < 4 || len(parts) > 5 {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	typ, err := ParseMessageType(parts[2])
	if err != nil {
		return Topic{}, err
	}
	t := Topic{Group: parts[1], Type: typ, Node: parts[3]}
	if len(parts) == 5 {
		t.Device = parts[4]
	}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}

// GroupFilter subscribes to every message of a group.
func GroupFilter(group string) string {
	return Namespace + "/" + group + "/#"
}

// CommandFilters returns the filters an edge node subscribes to for its own
// node and device commands.
func CommandFilters(group, node string) []string {
	return []string{
		Node(group, NCMD, node).String(),
		Namespace + "/" + group + "/" + string(DCMD) + "/" + node + "/+",
	}
}
