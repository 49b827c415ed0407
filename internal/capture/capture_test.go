package capture

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/szibis/sparkplug-edge/internal/compression"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

var testRecords = []Record{
	{Topic: "spBv1.0/plant/NBIRTH/edge-1", ReceivedAt: time.Unix(1700000000, 123), Payload: []byte{0x18, 0x00}},
	{Topic: "spBv1.0/plant/NDATA/edge-1", ReceivedAt: time.Unix(-5, 0), Payload: []byte{0x12, 0x04, 0x10, 0x01, 0x50, 0x07, 0x18, 0x01}},
	{Topic: "spBv1.0/plant/NDEATH/edge-1", Payload: nil},
}

func TestRoundTrip(t *testing.T) {
	types := []compression.Type{
		compression.TypeNone,
		compression.TypeGzip,
		compression.TypeZstd,
		compression.TypeSnappy,
		compression.TypeZlib,
		compression.TypeDeflate,
		compression.TypeLZ4,
	}
	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, compression.Config{Type: typ})
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			for _, rec := range testRecords {
				if err := w.Write(rec); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
			}
			if w.Count() != len(testRecords) {
				t.Errorf("Count() = %d, want %d", w.Count(), len(testRecords))
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), Magic[:]) {
				t.Fatal("missing magic")
			}

			r, err := NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			defer r.Close()
			if r.Compression() != typ {
				t.Errorf("Compression() = %s, want %s", r.Compression(), typ)
			}
			for i, want := range testRecords {
				got, err := r.Next()
				if err != nil {
					t.Fatalf("Next() #%d error = %v", i, err)
				}
				if got.Topic != want.Topic || !got.ReceivedAt.Equal(want.ReceivedAt) || !bytes.Equal(got.Payload, want.Payload) {
					t.Errorf("record %d = %+v, want %+v", i, got, want)
				}
			}
			if _, err := r.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("Next() after last error = %v, want EOF", err)
			}
		})
	}
}

func TestRecordEncoding(t *testing.T) {
	rec := Record{Topic: "a", ReceivedAt: time.Unix(0, -1), Payload: []byte{0xFF}}
	size := sizeRecord(rec)
	buf := make([]byte, size)
	w := wire.NewWriter(buf)
	if err := encodeRecord(&w, rec); err != nil {
		t.Fatalf("encodeRecord() error = %v", err)
	}
	// received_at -1ns is zig-zag 1
	want := []byte{0x0A, 0x01, 'a', 0x10, 0x01, 0x1A, 0x01, 0xFF}
	if !bytes.Equal(w.Written(), want) {
		t.Errorf("encoded % X, want % X", w.Written(), want)
	}
}

func TestDecodeRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"missing topic", []byte{0x1A, 0x00}},
		{"truncated", []byte{0x0A, 0x05, 'a'}},
		{"wire type mismatch", []byte{0x0A, 0x01, 'a', 0x15, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeRecord(tt.in); !errors.Is(err, ErrCorrupt) {
				t.Errorf("decodeRecord() error = %v, want %v", err, ErrCorrupt)
			}
		})
	}

	// unknown fields are skipped
	rec, err := decodeRecord([]byte{0x0A, 0x01, 'a', 0x20, 0x05})
	if err != nil || rec.Topic != "a" {
		t.Errorf("decodeRecord() = %+v, %v", rec, err)
	}
}

func TestBadHeader(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("short"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("short header error = %v, want %v", err, ErrBadMagic)
	}
	if _, err := NewReader(bytes.NewReader([]byte("NOTACAPT\x00"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("wrong magic error = %v, want %v", err, ErrBadMagic)
	}
	hdr := append(Magic[:], 0x7F)
	if _, err := NewReader(bytes.NewReader(hdr)); !errors.Is(err, ErrBadMagic) {
		t.Errorf("unknown compression error = %v, want %v", err, ErrBadMagic)
	}
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, compression.Config{Type: compression.TypeNone})
	_ = w.Write(testRecords[0])
	_ = w.Close()

	cut := buf.Bytes()[:buf.Len()-1]
	r, err := NewReader(bytes.NewReader(cut))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Next() error = %v, want %v", err, ErrCorrupt)
	}
}

func TestWriteAfterCloseAndTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, compression.Config{})
	if err := w.Write(Record{Topic: "t", Payload: make([]byte, MaxRecordSize)}); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("Write() error = %v, want %v", err, ErrRecordTooLarge)
	}
	_ = w.Close()
	if err := w.Write(testRecords[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.spbcap")
	w, err := Create(path, compression.Config{Type: compression.TypeZstd})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, rec := range testRecords {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	n := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		n++
	}
	if n != len(testRecords) {
		t.Errorf("read %d records, want %d", n, len(testRecords))
	}
}
