// Package erasure adapts a Reed-Solomon shard encoder for s3store's
// replicated blob layout: instead of splitting a shard set across local
// filesystem replicas, s3store splits it across S3 object keys within one
// bucket.
package erasure

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
)

// Codec erasure-encodes and decodes document payloads via reedsolomon.
type Codec struct {
	DataShardsCount   int
	ParityShardsCount int
	encoder           Encoder
}

// Encoder is the subset of reedsolomon.Encoder the codec depends on,
// declared locally so tests can substitute a fake without pulling in the
// real library.
type Encoder interface {
	Split(data []byte) ([][]byte, error)
	Encode(shards [][]byte) error
	Verify(shards [][]byte) (bool, error)
	Reconstruct(shards [][]byte) error
	Join(dst io.Writer, shards [][]byte, outSize int) error
}

// ShardMetaSize is 1 stuffed-byte-count byte + a 16-byte md5 checksum.
const ShardMetaSize = 17

// New builds a Codec with dataShards+parityShards total shards.
func New(dataShards, parityShards int, enc Encoder) (*Codec, error) {
	if dataShards+parityShards > 256 {
		return nil, fmt.Errorf("erasure: sum of data and parity shards cannot exceed 256")
	}
	return &Codec{DataShardsCount: dataShards, ParityShardsCount: parityShards, encoder: enc}, nil
}

// Encode splits data into DataShardsCount+ParityShardsCount shards.
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	shards, err := c.encoder.Split(data)
	if err != nil {
		return nil, err
	}
	if err := c.encoder.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// ShardMetadata computes the shard's per-shard trailer: a stuffed-zero-count
// byte followed by an md5 checksum, used to detect and reconstruct a
// corrupted or missing shard on read.
func (c *Codec) ShardMetadata(dataSize int, shards [][]byte, shardIndex int) []byte {
	checksum := md5.Sum(shards[shardIndex])
	out := make([]byte, 1+len(checksum))
	if dataSize%c.DataShardsCount != 0 {
		out[0] = byte(c.DataShardsCount - dataSize%c.DataShardsCount)
	}
	copy(out[1:], checksum[:])
	return out
}

// Decode reverses Encode, reconstructing missing or corrupted shards
// (indicated by a nil entry or a checksum mismatch against meta) before
// joining them back into the original payload.
func (c *Codec) Decode(shards [][]byte, meta [][]byte) ([]byte, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("erasure: shards must not be empty")
	}

	ok, _ := c.encoder.Verify(shards)
	if !ok {
		for i := range shards {
			if shards[i] == nil {
				continue
			}
			sum := md5.Sum(shards[i])
			if !bytes.Equal(meta[i][1:], sum[:]) {
				shards[i] = nil
			}
		}
		if err := c.encoder.Reconstruct(shards); err != nil {
			return nil, fmt.Errorf("erasure: reconstruct failed: %w", err)
		}
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := c.encoder.Join(&buf, shards, len(shards[0])*c.DataShardsCount); err != nil {
		return nil, fmt.Errorf("erasure: join failed: %w", err)
	}
	w.Flush()

	stuffed := 0
	for _, m := range meta {
		if len(m) > 0 {
			stuffed = int(m[0])
			break
		}
	}
	out := make([]byte, buf.Len()-stuffed)
	copy(out, buf.Bytes())
	return out, nil
}
