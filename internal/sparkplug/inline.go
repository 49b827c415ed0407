package sparkplug

// Capacities of the statically sized payload structure.
const (
	MaxMetrics = 16
	MaxNameLen = 48
	MaxUUIDLen = 36
	MaxBodyLen = 128
)

// Name is a metric name stored inline in its slot.
type Name struct {
	n uint8
	b [MaxNameLen]byte
}

// Set replaces the name. It fails with ErrNameTooLong, leaving the name
// unchanged, if s does not fit.
func (n *Name) Set(s string) error {
	if len(s) > MaxNameLen {
		return ErrNameTooLong
	}
	n.n = uint8(copy(n.b[:], s))
	return nil
}

func (n *Name) setBytes(b []byte) error {
	if len(b) > MaxNameLen {
		return ErrNameTooLong
	}
	n.n = uint8(copy(n.b[:], b))
	return nil
}

// Bytes returns a view of the name. It is valid until the name changes.
func (n *Name) Bytes() []byte { return n.b[:n.n] }

// Len returns the length of the name in bytes.
func (n *Name) Len() int { return int(n.n) }

// Equal reports whether the name is s, without allocating.
func (n *Name) Equal(s string) bool { return string(n.b[:n.n]) == s }

func (n Name) String() string { return string(n.b[:n.n]) }

// UUID is the payload uuid field stored inline.
type UUID struct {
	n uint8
	b [MaxUUIDLen]byte
}

// Set replaces the uuid. It fails with ErrFieldTooLong if s does not fit.
func (u *UUID) Set(s string) error {
	if len(s) > MaxUUIDLen {
		return ErrFieldTooLong
	}
	u.n = uint8(copy(u.b[:], s))
	return nil
}

func (u *UUID) setBytes(b []byte) error {
	if len(b) > MaxUUIDLen {
		return ErrFieldTooLong
	}
	u.n = uint8(copy(u.b[:], b))
	return nil
}

func (u *UUID) Bytes() []byte { return u.b[:u.n] }

func (u UUID) String() string { return string(u.b[:u.n]) }

// Body is the opaque payload body stored inline.
type Body struct {
	n uint8
	b [MaxBodyLen]byte
}

// Set replaces the body. It fails with ErrFieldTooLong if b does not fit.
func (d *Body) Set(b []byte) error {
	if len(b) > MaxBodyLen {
		return ErrFieldTooLong
	}
	d.n = uint8(copy(d.b[:], b))
	return nil
}

func (d *Body) Bytes() []byte { return d.b[:d.n] }
