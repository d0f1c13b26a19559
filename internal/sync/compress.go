package sync

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("sync: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("sync: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns data as a zstd frame.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// zstdDestination compresses every payload before handing it on.
type zstdDestination struct {
	next Destination
}

// Zstd wraps next so it receives zstd-compressed payloads.
func Zstd(next Destination) Destination {
	return &zstdDestination{next: next}
}

func (d *zstdDestination) Name() string { return d.next.Name() }

func (d *zstdDestination) Write(ctx context.Context, data []byte) error {
	return d.next.Write(ctx, Compress(data))
}
