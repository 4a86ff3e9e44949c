package nanodc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("nanodc: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("nanodc: zstd decoder initialization failed: " + err.Error())
	}
}

// CompressList compresses a serialized file list with the named codec.
func CompressList(codec string, data []byte) ([]byte, error) {
	switch strings.ToLower(codec) {
	case "zstd":
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
	case "lz4":
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", codec)
	}
}

// DecompressList reverses CompressList.
func DecompressList(codec string, compressed []byte) ([]byte, error) {
	switch strings.ToLower(codec) {
	case "zstd":
		result, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return result, nil
	case "lz4":
		result, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", codec)
	}
}
