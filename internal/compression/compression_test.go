package compression

import (
	"bytes"
	"io"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		expected Type
		wantErr  bool
	}{
		{"", TypeNone, false},
		{"none", TypeNone, false},
		{"gzip", TypeGzip, false},
		{"GZIP", TypeGzip, false},
		{"zstd", TypeZstd, false},
		{"snappy", TypeSnappy, false},
		{"zlib", TypeZlib, false},
		{"deflate", TypeDeflate, false},
		{"lz4", TypeLZ4, false},
		{"unknown", TypeNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseType(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCodeRoundTrip(t *testing.T) {
	for i, typ := range codes {
		code, err := typ.Code()
		if err != nil {
			t.Fatalf("Code(%s) error = %v", typ, err)
		}
		if int(code) != i {
			t.Errorf("Code(%s) = %d, want %d", typ, code, i)
		}
		back, err := FromCode(code)
		if err != nil || back != typ {
			t.Errorf("FromCode(%d) = %v, %v; want %v", code, back, err, typ)
		}
	}
	if _, err := FromCode(200); err == nil {
		t.Error("expected error for unknown code")
	}
	if _, err := Type("brotli").Code(); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestStreamWriterReader(t *testing.T) {
	records := [][]byte{
		[]byte("spBv1.0/plant/NBIRTH/edge-1"),
		{0x08, 0x96, 0x01, 0x18, 0x00},
		bytes.Repeat([]byte{0x42}, 4096),
	}
	for _, typ := range codes {
		t.Run(string(typ), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, Config{Type: typ})
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			for _, r := range records {
				if _, err := w.Write(r); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			r, err := NewReader(&buf, typ)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if want := bytes.Join(records, nil); !bytes.Equal(got, want) {
				t.Errorf("stream round trip mismatch: got %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestCompressDecompress(t *testing.T) {
	testData := []byte("Hello, World! This is some test data for compression testing. Let's make it a bit longer to see actual compression.")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"none", Config{Type: TypeNone}},
		{"gzip-default", Config{Type: TypeGzip, Level: LevelDefault}},
		{"gzip-fast", Config{Type: TypeGzip, Level: LevelFastest}},
		{"gzip-best", Config{Type: TypeGzip, Level: LevelBest}},
		{"zstd-default", Config{Type: TypeZstd, Level: LevelDefault}},
		{"zstd-fastest", Config{Type: TypeZstd, Level: ZstdSpeedFastest}},
		{"zstd-best", Config{Type: TypeZstd, Level: ZstdSpeedBestCompression}},
		{"snappy", Config{Type: TypeSnappy}},
		{"zlib-default", Config{Type: TypeZlib, Level: LevelDefault}},
		{"zlib-best", Config{Type: TypeZlib, Level: LevelBest}},
		{"deflate-default", Config{Type: TypeDeflate, Level: LevelDefault}},
		{"deflate-best", Config{Type: TypeDeflate, Level: LevelBest}},
		{"lz4-default", Config{Type: TypeLZ4, Level: LevelDefault}},
		{"lz4-best", Config{Type: TypeLZ4, Level: LevelBest}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress(testData, tt.cfg)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}

			decompressed, err := Decompress(compressed, tt.cfg.Type)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}

			if !bytes.Equal(decompressed, testData) {
				t.Errorf("Decompressed data doesn't match original. Got %d bytes, want %d bytes", len(decompressed), len(testData))
			}
		})
	}
}

func TestCompressNone(t *testing.T) {
	data := []byte("test data")
	cfg := Config{Type: TypeNone}

	compressed, err := Compress(data, cfg)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	if !bytes.Equal(compressed, data) {
		t.Error("Compress with TypeNone should return original data")
	}
}

func TestDecompressNone(t *testing.T) {
	data := []byte("test data")

	decompressed, err := Decompress(data, TypeNone)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}

	if !bytes.Equal(decompressed, data) {
		t.Error("Decompress with TypeNone should return original data")
	}
}

func TestCompressUnsupportedType(t *testing.T) {
	_, err := Compress([]byte("test"), Config{Type: Type("invalid")})
	if err == nil {
		t.Error("expected error for unsupported compression type")
	}
}

func TestDecompressUnsupportedType(t *testing.T) {
	_, err := Decompress([]byte("test"), Type("invalid"))
	if err == nil {
		t.Error("expected error for unsupported compression type")
	}
}

func TestDecompressInvalidData(t *testing.T) {
	invalidData := []byte("not compressed data")

	tests := []Type{
		TypeGzip,
		TypeZstd,
		TypeSnappy,
		TypeZlib,
		TypeDeflate,
		TypeLZ4,
	}

	for _, tt := range tests {
		t.Run(string(tt), func(t *testing.T) {
			_, err := Decompress(invalidData, tt)
			if err == nil {
				t.Errorf("expected error for invalid %s data", tt)
			}
		})
	}
}

func TestEmptyData(t *testing.T) {
	emptyData := []byte{}

	tests := []Config{
		{Type: TypeNone},
		{Type: TypeGzip},
		{Type: TypeZstd},
		{Type: TypeSnappy},
		{Type: TypeZlib},
		{Type: TypeDeflate},
		{Type: TypeLZ4},
	}

	for _, tt := range tests {
		t.Run(string(tt.Type), func(t *testing.T) {
			compressed, err := Compress(emptyData, tt)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}

			decompressed, err := Decompress(compressed, tt.Type)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}

			if !bytes.Equal(decompressed, emptyData) {
				t.Error("Decompressed data should be empty")
			}
		})
	}
}
