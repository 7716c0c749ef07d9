package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/retry"
)

// fakeS3 keeps objects in a map and can fail the first N uploads.
type fakeS3 struct {
	mu          sync.Mutex
	objects     map[string][]byte
	types       map[string]string
	failPuts    int
	putErr      error
	putAttempts int
	pageSize    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, pageSize: 1000}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putAttempts++
	if f.failPuts > 0 {
		f.failPuts--
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(f.types[aws.ToString(in.Key)]),
		ETag:          aws.String(`"etag"`),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(f.types[aws.ToString(in.Key)]),
		ETag:          aws.String(`"etag"`),
		LastModified:  aws.Time(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 pages through keys in reverse order; the store sorts the result.
func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	slices.Reverse(keys)
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func newTestS3(fake *fakeS3) *S3 {
	s := newS3WithClient(fake, "lab-backups", zap.NewNop())
	s.retry = &retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	return s
}

func TestS3_PutThenGet(t *testing.T) {
	store := newTestS3(newFakeS3())
	ctx := context.Background()

	info, err := store.Put(ctx, "backups/labqms-1.json", strings.NewReader(`{"a":1}`), PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)
	assert.Equal(t, "etag", info.ETag)

	got, body, err := store.Get(ctx, "backups/labqms-1.json")
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, `{"a":1}`, string(data))
	assert.Equal(t, "application/json", got.ContentType)
}

func TestS3_PutRetriesTransientFailures(t *testing.T) {
	fake := newFakeS3()
	fake.failPuts = 2
	fake.putErr = errors.New("api error SlowDown: Please reduce your request rate")
	store := newTestS3(fake)

	_, err := store.Put(context.Background(), "k", strings.NewReader("payload"), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.putAttempts)
	assert.Equal(t, []byte("payload"), fake.objects["k"], "every attempt sends the full body")
}

func TestS3_PutPermanentFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failPuts = 5
	fake.putErr = errors.New("api error AccessDenied: Access Denied")
	store := newTestS3(fake)

	_, err := store.Put(context.Background(), "k", strings.NewReader("payload"), PutOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, fake.putAttempts)
}

func TestS3_MissingKeyIsNotFound(t *testing.T) {
	store := newTestS3(newFakeS3())
	ctx := context.Background()

	_, _, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Head(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestS3_ListPaginatesAndSorts(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	for _, k := range []string{"backups/c", "backups/a", "backups/b", "elsewhere/z", "backups/d"} {
		fake.objects[k] = []byte("{}")
	}
	store := newTestS3(fake)

	infos, err := store.List(context.Background(), "backups/")
	require.NoError(t, err)
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []string{"backups/a", "backups/b", "backups/c", "backups/d"}, keys)
}

func TestS3_Delete(t *testing.T) {
	fake := newFakeS3()
	fake.objects["k"] = []byte("x")
	store := newTestS3(fake)

	require.NoError(t, store.Delete(context.Background(), "k"))
	_, ok := fake.objects["k"]
	assert.False(t, ok)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{}, zap.NewNop())
	require.Error(t, err)
}
