// Package capture records Sparkplug traffic to a file and reads it back.
//
// A capture file starts with an 8-byte magic and one compression byte. The
// rest is a compressed stream of records, each a uvarint length followed by
// a protobuf-wire record with the message topic, the receive time and the
// raw payload.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/compression"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Magic identifies a capture file.
var Magic = [8]byte{'S', 'P', 'B', 'C', 'A', 'P', '0', '1'}

// MaxRecordSize bounds a single encoded record.
const MaxRecordSize = 1 << 20

var (
	ErrBadMagic       = errors.New("capture: not a capture file")
	ErrCorrupt        = errors.New("capture: corrupt record")
	ErrRecordTooLarge = errors.New("capture: record too large")
	ErrClosed         = errors.New("capture: writer closed")
)

// Record is one captured message.
type Record struct {
	Topic      string
	ReceivedAt time.Time
	Payload    []byte
}

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	zw     io.WriteCloser
	file   *os.File
	buf    []byte
	count  int
	closed bool
}

// NewWriter writes the header to w and returns a Writer for records.
func NewWriter(w io.Writer, cfg compression.Config) (*Writer, error) {
	code, err := cfg.Type.Code()
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(Magic[:]); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	if err := bw.WriteByte(code); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	zw, err := compression.NewWriter(bw, cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{bw: bw, zw: zw}, nil
}

// Create creates (or truncates) path and returns a Writer over it.
func Create(path string, cfg compression.Config) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	w, err := NewWriter(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	logging.Info("capture started", logging.F("path", path, "compression", string(cfg.Type)))
	return w, nil
}

// Write appends rec.
func (w *Writer) Write(rec Record) error {
	size := sizeRecord(rec)
	if size > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	need := wire.SizeVarint(uint64(size)) + size
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	ww := wire.NewWriter(w.buf[:need])
	if err := ww.Varint(uint64(size)); err != nil {
		return err
	}
	if err := encodeRecord(&ww, rec); err != nil {
		return err
	}
	if _, err := w.zw.Write(ww.Written()); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes the stream. If the Writer was created by Create, the file is
// closed as well.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if ferr := w.bw.Flush(); err == nil {
		err = ferr
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
		logging.Info("capture closed", logging.F("path", w.file.Name(), "records", w.count))
	}
	if err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	return nil
}

// Reader reads records from a capture stream.
type Reader struct {
	br   *bufio.Reader
	zr   io.ReadCloser
	typ  compression.Type
	file *os.File
	buf  []byte
}

// NewReader checks the header of r and returns a Reader for its records.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [len(Magic) + 1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(hdr[:len(Magic)], Magic[:]) {
		return nil, ErrBadMagic
	}
	typ, err := compression.FromCode(hdr[len(Magic)])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	zr, err := compression.NewReader(r, typ)
	if err != nil {
		return nil, err
	}
	return &Reader{br: bufio.NewReader(zr), zr: zr, typ: typ}, nil
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	r, err := NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Compression reports the compression of the stream.
func (r *Reader) Compression() compression.Type { return r.typ }

// Next returns the next record, or io.EOF after the last one. The payload is
// only valid until the following call.
func (r *Reader) Next() (Record, error) {
	n, err := binary.ReadUvarint(r.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: length: %v", ErrCorrupt, err)
	}
	if n > MaxRecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}
	if uint64(cap(r.buf)) < n {
		r.buf = make([]byte, n)
	}
	b := r.buf[:n]
	if _, err := io.ReadFull(r.br, b); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decodeRecord(b)
}

// Close releases the decompressor and, for Open, the file.
func (r *Reader) Close() error {
	err := r.zr.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func sizeRecord(rec Record) int {
	s := wire.NewSizer()
	_ = encodeRecord(&s, rec)
	return s.Len()
}

func encodeRecord(w *wire.Writer, rec Record) error {
	topic := catalog.Describe(catalog.RecordTopic)
	if err := w.Tag(topic.Number, topic.WireType()); err != nil {
		return err
	}
	if err := w.String(rec.Topic); err != nil {
		return err
	}
	if !rec.ReceivedAt.IsZero() {
		at := catalog.Describe(catalog.RecordReceivedAt)
		if err := w.Tag(at.Number, at.WireType()); err != nil {
			return err
		}
		if err := w.ZigZag(rec.ReceivedAt.UnixNano()); err != nil {
			return err
		}
	}
	payload := catalog.Describe(catalog.RecordPayload)
	if err := w.Tag(payload.Number, payload.WireType()); err != nil {
		return err
	}
	return w.Bytes(rec.Payload)
}

func decodeRecord(b []byte) (Record, error) {
	var rec Record
	r := wire.NewReader(b)
	for !r.Done() {
		num, typ, err := r.Tag()
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		d, ok := catalog.Lookup(catalog.KindRecord, num)
		if !ok {
			if err := r.Skip(typ); err != nil {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			continue
		}
		if typ != d.WireType() {
			return Record{}, fmt.Errorf("%w: field %s has wire type %d", ErrCorrupt, d.Name, typ)
		}
		switch d.Field {
		case catalog.RecordTopic:
			v, err := r.Bytes()
			if err != nil {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			rec.Topic = string(v)
		case catalog.RecordReceivedAt:
			v, err := r.ZigZag()
			if err != nil {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			rec.ReceivedAt = time.Unix(0, v)
		case catalog.RecordPayload:
			v, err := r.Bytes()
			if err != nil {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			rec.Payload = v
		}
	}
	if rec.Topic == "" {
		return Record{}, fmt.Errorf("%w: missing topic", ErrCorrupt)
	}
	return rec, nil
}
