// Package compression wraps stream compressors for capture files.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type string

const (
	// TypeNone means no compression.
	TypeNone Type = "none"
	// TypeGzip uses gzip compression.
	TypeGzip Type = "gzip"
	// TypeZstd uses zstd compression.
	TypeZstd Type = "zstd"
	// TypeSnappy uses the snappy framing format.
	TypeSnappy Type = "snappy"
	// TypeZlib uses zlib compression.
	TypeZlib Type = "zlib"
	// TypeDeflate uses deflate compression.
	TypeDeflate Type = "deflate"
	// TypeLZ4 uses the lz4 frame format.
	TypeLZ4 Type = "lz4"
)

// codes is the one-byte identifier stored in capture headers. The order is
// part of the file format.
var codes = []Type{TypeNone, TypeGzip, TypeZstd, TypeSnappy, TypeZlib, TypeDeflate, TypeLZ4}

// Level represents compression level settings.
type Level int

// Common compression levels (algorithm-specific mappings).
const (
	// LevelDefault uses the default compression level for the algorithm.
	LevelDefault Level = 0
	// LevelFastest uses the fastest compression (lowest ratio).
	LevelFastest Level = 1
	// LevelBest uses the best compression (highest ratio).
	LevelBest Level = 9
)

// zstd levels
const (
	ZstdSpeedFastest           Level = 1
	ZstdSpeedDefault           Level = 3
	ZstdSpeedBetterCompression Level = 6
	ZstdSpeedBestCompression   Level = 11
)

// Config holds compression configuration.
type Config struct {
	// Type is the compression algorithm to use.
	Type Type
	// Level is the compression level (algorithm-specific).
	Level Level
}

// ParseType parses a compression type string.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "gzip":
		return TypeGzip, nil
	case "zstd":
		return TypeZstd, nil
	case "snappy":
		return TypeSnappy, nil
	case "zlib":
		return TypeZlib, nil
	case "deflate":
		return TypeDeflate, nil
	case "lz4":
		return TypeLZ4, nil
	default:
		return TypeNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}

// Code returns the header byte for t.
func (t Type) Code() (byte, error) {
	if t == "" {
		t = TypeNone
	}
	for i, c := range codes {
		if c == t {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported compression type: %s", t)
}

// FromCode maps a header byte back to its Type.
func FromCode(b byte) (Type, error) {
	if int(b) >= len(codes) {
		return TypeNone, fmt.Errorf("unknown compression code %d", b)
	}
	return codes[b], nil
}

// NewWriter returns a writer compressing into w. Close flushes the stream
// but does not close w.
func NewWriter(w io.Writer, cfg Config) (io.WriteCloser, error) {
	cw := &countingWriter{w: w, typ: cfg.Type}
	var (
		zw  io.WriteCloser
		err error
	)
	switch cfg.Type {
	case TypeNone, "":
		cw.typ = TypeNone
		zw = nopCloser{cw}
	case TypeGzip:
		zw, err = gzip.NewWriterLevel(cw, flateLevel(cfg.Level))
	case TypeZstd:
		zw, err = zstd.NewWriter(cw, zstd.WithEncoderLevel(zstdLevel(cfg.Level)))
	case TypeSnappy:
		zw = snappy.NewBufferedWriter(cw)
	case TypeZlib:
		zw, err = zlib.NewWriterLevel(cw, flateLevel(cfg.Level))
	case TypeDeflate:
		zw, err = flate.NewWriter(cw, flateLevel(cfg.Level))
	case TypeLZ4:
		lw := lz4.NewWriter(cw)
		if cfg.Level != LevelDefault {
			err = lw.Apply(lz4.CompressionLevelOption(lz4Level(cfg.Level)))
		}
		zw = lw
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", cfg.Type, err)
	}
	return zw, nil
}

// NewReader returns a reader decompressing from r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case TypeNone, "":
		return io.NopCloser(r), nil
	case TypeGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case TypeZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return d.IOReadCloser(), nil
	case TypeSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case TypeZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		return zr, nil
	case TypeDeflate:
		return flate.NewReader(r), nil
	case TypeLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// Compress compresses data in one shot.
func Compress(data []byte, cfg Config) ([]byte, error) {
	if cfg.Type == TypeNone || cfg.Type == "" {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write %s data: %w", cfg.Type, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", cfg.Type, err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in one shot.
func Decompress(data []byte, t Type) ([]byte, error) {
	if t == TypeNone || t == "" {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), t)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s data: %w", t, err)
	}
	return out, nil
}

func flateLevel(level Level) int {
	if level == LevelDefault {
		return flate.DefaultCompression
	}
	return int(level)
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case ZstdSpeedFastest:
		return zstd.SpeedFastest
	case ZstdSpeedBetterCompression:
		return zstd.SpeedBetterCompression
	case ZstdSpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= LevelFastest:
		return lz4.Fast
	case level >= LevelBest:
		return lz4.Level9
	default:
		return lz4.CompressionLevel(1 << (8 + int(level)))
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
