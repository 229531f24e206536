package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs the shared contract against every implementation
func backends(t *testing.T) map[string]Storage {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"local":  local,
		"memory": NewMemoryStorage(),
		"s3":     NewS3StorageWithClient(newFakeS3(), "bucket", "phaseflow"),
	}
}

func TestStorageContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read(ctx, "states/missing.json")
			assert.True(t, errors.Is(err, ErrNotFound), "read missing: %v", err)

			ok, err := s.Exists(ctx, "states/a.json")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Write(ctx, "states/a.json", []byte(`{"v":1}`)))
			require.NoError(t, s.Write(ctx, "states/b.json", []byte(`{"v":2}`)))
			require.NoError(t, s.Write(ctx, "states/a.json", []byte(`{"v":3}`)))
			require.NoError(t, s.Write(ctx, "archive/c.json", []byte(`{}`)))

			data, err := s.Read(ctx, "states/a.json")
			require.NoError(t, err)
			assert.Equal(t, `{"v":3}`, string(data))

			ok, err = s.Exists(ctx, "states/a.json")
			require.NoError(t, err)
			assert.True(t, ok)

			keys, err := s.List(ctx, "states")
			require.NoError(t, err)
			assert.Equal(t, []string{"states/a.json", "states/b.json"}, keys)

			require.NoError(t, s.Delete(ctx, "states/b.json"))
			keys, err = s.List(ctx, "states/")
			require.NoError(t, err)
			assert.Equal(t, []string{"states/a.json"}, keys)

			_, err = s.Read(ctx, "../escape.json")
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestLocalStorageLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + i%26)}, 4096)
			assert.NoError(t, s.Write(ctx, "states/x.json", payload))
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Join(dir, "states"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.json", entries[0].Name())

	data, err := s.Read(ctx, "states/x.json")
	require.NoError(t, err)
	assert.Len(t, data, 4096)
	assert.Equal(t, strings.Repeat(string(data[0]), 4096), string(data))
}

func TestLocalStorageListMissingDir(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	keys, err := s.List(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// fakeS3 is an in-memory S3API returning the same error shapes as S3.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], "/") {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func TestS3StorageKeysUsePrefix(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StorageWithClient(fake, "bucket", "/teams/web/")
	require.NoError(t, s.Write(context.Background(), "states/a.json", []byte("{}")))

	_, ok := fake.objects["teams/web/states/a.json"]
	assert.True(t, ok)
}

func TestS3StorageWrapsOtherErrors(t *testing.T) {
	assert.False(t, isNotFound(errors.New("NoSuchKey in a plain string")))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
}
