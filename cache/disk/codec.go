package disk

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// codec compresses entries with zstd. A nil codec passes data through.
type codec struct {
	level zstd.EncoderLevel
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newCodec(level int) (*codec, error) {
	lvl := zstd.EncoderLevelFromZstd(level)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &codec{level: lvl, enc: enc, dec: dec}, nil
}

func (c *codec) encode(data []byte) []byte {
	if c == nil {
		return data
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *codec) decode(data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	return c.dec.DecodeAll(data, nil)
}

// streamWriter wraps w so that writes are compressed. The caller must Close
// the returned writer to flush the final frame.
func (c *codec) streamWriter(w io.Writer) (io.WriteCloser, error) {
	if c == nil {
		return nil, nil
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
}

func (c *codec) close() {
	if c == nil {
		return
	}
	_ = c.enc.Close()
	c.dec.Close()
}
