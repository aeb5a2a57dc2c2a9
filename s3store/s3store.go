// Package s3store is an S3-backed store.DocumentStore that erasure-codes
// each document across multiple object keys for resiliency: aws.Config and
// credentials wiring plus PutObject/GetObject/DeleteObjects calls, combined
// with the Reed-Solomon codec in ./erasure.
package s3store

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/reedsolomon"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/s3store/erasure"
)

// Config configures the S3 (or S3-compatible, e.g. MinIO) endpoint.
type Config struct {
	HostEndpointURL string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// DataShards and ParityShards size the Reed-Solomon codec; ParityShards
	// of the DataShards+ParityShards total object keys can be lost per
	// document without data loss.
	DataShards   int
	ParityShards int
}

// DefaultConfig applies a conventional 4 data / 2 parity shard split.
func DefaultConfig() Config {
	return Config{DataShards: 4, ParityShards: 2}
}

// Connect builds an s3.Client per cfg, mirroring aws_s3.Connect.
func Connect(cfg Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.HostEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.HostEndpointURL)
			o.UsePathStyle = true
		}
		if cfg.AccessKeyID != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		}
	})
}

// Store is a store.DocumentStore that erasure-codes each saved entity across
// DataShards+ParityShards object keys under the document's id, so up to
// ParityShards shard losses are transparently recovered on Load.
type Store struct {
	client     *s3.Client
	bucket     string
	codec      *erasure.Codec
	marsh      yessql.Marshaler
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// New wires a Store around an already-connected s3.Client. Shard uploads
// go through manager.Uploader so a shard large enough to benefit from
// multipart transfer gets one without the erasure-coding path having to
// know about it; Load reads shards with direct GetObject calls.
func New(client *s3.Client, cfg Config) (*Store, error) {
	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, err
	}
	codec, err := erasure.New(cfg.DataShards, cfg.ParityShards, enc)
	if err != nil {
		return nil, err
	}
	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		codec:      codec,
		marsh:      yessql.NewMarshaler(),
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func shardKey(id int64, shard int) string {
	return fmt.Sprintf("doc/%d/shard-%d", id, shard)
}

// Save marshals entity, erasure-codes the payload, and uploads each shard as
// its own object; a shard's metadata trailer (checksum, stuffed byte count)
// is stored alongside it as an S3 object metadata header so Load can detect
// corruption without downloading every shard's sibling.
func (s *Store) Save(ctx context.Context, id int64, entity any) error {
	data, err := s.marsh.Marshal(entity)
	if err != nil {
		return yessql.Backend(err)
	}
	shards, err := s.codec.Encode(data)
	if err != nil {
		return yessql.Backend(err)
	}
	for i, shard := range shards {
		meta := s.codec.ShardMetadata(len(data), shards, i)
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(shardKey(id, i)),
			Body:     bytes.NewReader(shard),
			Metadata: map[string]string{"checksum": fmt.Sprintf("%x", meta[1:]), "stuffed": fmt.Sprintf("%d", meta[0])},
		})
		if err != nil {
			return yessql.Backend(err)
		}
	}
	return nil
}

// Load downloads every shard for id, reconstructing any that are missing or
// failed checksum verification, and unmarshals the recovered payload into
// out.
func (s *Store) Load(ctx context.Context, id int64, out any) (bool, error) {
	total := s.codec.DataShardsCount + s.codec.ParityShardsCount
	shards := make([][]byte, total)
	meta := make([][]byte, total)
	found := false

	for i := 0; i < total; i++ {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(shardKey(id, i)),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				continue
			}
			return false, yessql.Backend(err)
		}
		found = true
		body, err := io.ReadAll(result.Body)
		result.Body.Close()
		if err != nil {
			return false, yessql.Backend(err)
		}
		shards[i] = body
		meta[i] = shardMetaFromHeader(result.Metadata)
	}
	if !found {
		return false, nil
	}

	data, err := s.codec.Decode(shards, meta)
	if err != nil {
		return false, yessql.Backend(err)
	}
	if err := s.marsh.Unmarshal(data, out); err != nil {
		return false, yessql.Backend(err)
	}
	return true, nil
}

// Delete removes every shard object for id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	total := s.codec.DataShardsCount + s.codec.ParityShardsCount
	objects := make([]types.ObjectIdentifier, total)
	for i := 0; i < total; i++ {
		objects[i] = types.ObjectIdentifier{Key: aws.String(shardKey(id, i))}
	}
	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		return yessql.Backend(err)
	}
	return nil
}

func shardMetaFromHeader(md map[string]string) []byte {
	checksum, _ := hex.DecodeString(md["checksum"])
	stuffed, _ := strconv.Atoi(md["stuffed"])
	out := make([]byte, 1+len(checksum))
	out[0] = byte(stuffed)
	copy(out[1:], checksum)
	return out
}
