package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{"courses":[{"id":"c1","nomeCorso":"Informatica"}]}`

func TestLocal_OpenAndNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "all_courses_data.json"), []byte(payload), 0o600))

	src := NewLocal(dir)
	rc, err := src.Open(context.Background(), "all_courses_data.json")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, payload, string(got))

	_, err = src.Open(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_PutOpenDelete(t *testing.T) {
	src := NewMemory()
	data := []byte(payload)
	src.Put("c.json", data)
	data[0] = 'X' // Put must copy

	rc, err := src.Open(context.Background(), "c.json")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, payload, string(got))

	src.Delete("c.json")
	_, err = src.Open(context.Background(), "c.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"courses/snapshots/all.json": []byte(payload)}}
	src := NewS3WithClient(fake, "courses", "snapshots")

	rc, err := src.Open(context.Background(), "all.json")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, payload, string(got))

	_, err = src.Open(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.err = errors.New("access denied")
	_, err = src.Open(context.Background(), "all.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestIsMinIONotFound(t *testing.T) {
	assert.True(t, isMinIONotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isMinIONotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, isMinIONotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

func TestNewMinIO_Validation(t *testing.T) {
	_, err := NewMinIO(MinIOConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestCodecFor(t *testing.T) {
	tests := map[string]Codec{
		"all_courses_data.json":     CodecNone,
		"all_courses_data.json.gz":  CodecGzip,
		"all_courses_data.json.ZST": CodecZstd,
		"snap.lz4":                  CodecLZ4,
		"snap.br":                   CodecBrotli,
	}
	for name, want := range tests {
		assert.Equal(t, want, CodecFor(name), name)
	}
}

func TestDecode_AllCodecs(t *testing.T) {
	encoders := map[string]func(w io.Writer) io.WriteCloser{
		"c.json.gz": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"c.json.zst": func(w io.Writer) io.WriteCloser {
			zw, _ := zstd.NewWriter(w)
			return zw
		},
		"c.json.lz4": func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) },
		"c.json.br":  func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
	}

	src := NewMemory()
	for name, enc := range encoders {
		var buf bytes.Buffer
		w := enc(&buf)
		_, err := w.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		src.Put(name, buf.Bytes())
	}
	src.Put("c.json", []byte(payload))

	for _, name := range []string{"c.json", "c.json.gz", "c.json.zst", "c.json.lz4", "c.json.br"} {
		t.Run(name, func(t *testing.T) {
			rc, err := OpenDecoded(context.Background(), src, name)
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestDecode_CorruptGzip(t *testing.T) {
	_, err := Decode("bad.gz", io.NopCloser(bytes.NewReader([]byte("not gzip"))))
	assert.Error(t, err)
}

func TestOpenDecoded_NotFound(t *testing.T) {
	_, err := OpenDecoded(context.Background(), NewMemory(), "x.json.gz")
	assert.ErrorIs(t, err, ErrNotFound)
}
