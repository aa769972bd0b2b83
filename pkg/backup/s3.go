package backup

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/shisoft/Nebuchadnezzar/pkg/pools"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
)

// S3Archiver is an alternative to Archive for servers whose
// ServerConfig.BackupStorage names an "s3://bucket/prefix" URI instead of
// a local directory. It uses the same snappy+crc32 block framing as the
// local file archiver so a single ReplayFile-shaped reader works over
// either, but PUTs the whole framed object in one call instead of
// streaming it (one object per archived segment, not a multipart stream
// per block).
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver builds an S3Archiver from a "s3://bucket[/prefix]" URI,
// loading AWS credentials and region via the default config chain, so the
// process picks up whatever environment/role credentials are already
// available rather than requiring them threaded through ServerConfig.
func NewS3Archiver(ctx context.Context, uri string) (*S3Archiver, error) {
	bucket, prefix, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: loading aws config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func parseS3URI(uri string) (bucket, prefix string, err error) {
	const schemePrefix = "s3://"
	if !strings.HasPrefix(uri, schemePrefix) {
		return "", "", fmt.Errorf("backup: %q is not an s3:// URI", uri)
	}
	rest := uri[len(schemePrefix):]
	if rest == "" {
		return "", "", fmt.Errorf("backup: %q has no bucket", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return bucket, prefix, nil
}

func (a *S3Archiver) key(chunkID uint64, segmentID uint64) string {
	if a.prefix == "" {
		return fmt.Sprintf("chunk-%d/%s", chunkID, fileName(segmentID))
	}
	return fmt.Sprintf("%s/chunk-%d/%s", a.prefix, chunkID, fileName(segmentID))
}

// ArchiveFunc returns an slab.ArchiveFunc bound to chunkID, so each chunk
// can be wired independently: slab.NewCleaner(store, archiver.ArchiveFunc(chunkID)).
func (a *S3Archiver) ArchiveFunc(chunkID uint64) slab.ArchiveFunc {
	return func(seg *slab.Segment) (bool, error) {
		return a.archive(context.Background(), chunkID, seg)
	}
}

func (a *S3Archiver) archive(ctx context.Context, chunkID uint64, seg *slab.Segment) (bool, error) {
	if !seg.MarkArchived() {
		return false, nil
	}

	seg.RLock()
	live := seg.AppendOffset()
	data := make([]byte, live)
	copy(data, seg.Bytes()[:live])
	seg.RUnlock()

	var buf bytes.Buffer
	scratch := pools.GetSized(snappy.MaxEncodedLen(BlockSize))
	defer pools.Put(scratch)
	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		if end > len(data) {
			end = len(data)
		}
		compressed := snappy.Encode(scratch[:cap(scratch)], data[off:end])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
		buf.Write(lenBuf[:])
		buf.Write(compressed)
		var crcBuf [4]byte
		binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(compressed))
		buf.Write(crcBuf[:])
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(chunkID, seg.Id)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		seg.UnmarkArchived()
		return false, fmt.Errorf("backup: s3 put %s: %w", a.key(chunkID, seg.Id), err)
	}
	return true, nil
}

// ReplayChunk downloads and replays every archived segment object under
// chunkID's prefix, in segment-id order, calling handler once per
// decompressed block. Mirrors ReplayDir's best-effort truncation handling
// for the local file path: a short read or checksum mismatch on a
// trailing block stops replay of that object without failing the whole
// scan.
func (a *S3Archiver) ReplayChunk(ctx context.Context, chunkID uint64, handler func(segmentID uint64, data []byte) error) error {
	prefix := fmt.Sprintf("chunk-%d/", chunkID)
	if a.prefix != "" {
		prefix = a.prefix + "/" + prefix
	}

	type segObject struct {
		id  uint64
		key string
	}
	var objects []segObject
	var continuation *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("backup: s3 list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			var id uint64
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if _, err := fmt.Sscanf(name, "%d.seg.snappy", &id); err != nil {
				continue
			}
			objects = append(objects, segObject{id: id, key: aws.ToString(obj.Key)})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].id < objects[j].id })
	for _, o := range objects {
		if err := a.replayObject(ctx, o.key, o.id, handler); err != nil {
			return err
		}
	}
	return nil
}

func (a *S3Archiver) replayObject(ctx context.Context, key string, segmentID uint64, handler func(uint64, []byte) error) error {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("backup: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("backup: s3 read %s: %w", key, err)
	}

	r := buf.Bytes()
	for len(r) > 0 {
		if len(r) < 4 {
			return nil // torn trailing length prefix
		}
		blockLen := binary.BigEndian.Uint32(r[:4])
		r = r[4:]
		if uint32(len(r)) < blockLen+4 {
			return nil // torn trailing block or checksum
		}
		compressed := r[:blockLen]
		crcBuf := r[blockLen : blockLen+4]
		r = r[blockLen+4:]
		if crc32.ChecksumIEEE(compressed) != binary.BigEndian.Uint32(crcBuf) {
			return nil // torn/corrupt trailing block
		}
		raw, err := snappy.Decode(nil, compressed)
		if err != nil {
			return fmt.Errorf("backup: decompress %s: %w", key, err)
		}
		if err := handler(segmentID, raw); err != nil {
			return err
		}
	}
	return nil
}
