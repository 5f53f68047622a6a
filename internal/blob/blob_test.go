package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ata-pipeline/internal/config"
	"ata-pipeline/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string // "bucket/key" -> body
	failures int                // next N calls fail
	failWith error
	calls    int
}

func (f *fakeS3) fail() error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		if f.failWith != nil {
			return f.failWith
		}
		return errors.New("transient")
	}
	return nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := &s3.ListObjectsV2Output{}
	prefix := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Prefix)
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			key := strings.TrimPrefix(k, aws.ToString(in.Bucket)+"/")
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func testCfg() config.Config {
	return config.Config{S3Timeout: time.Second, S3AppRetries: 3}
}

func TestS3Store_ListAndOpen(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"lnl-snowplow-afro-la/enriched/good/2024/01/02/03/a.gz": "A",
		"lnl-snowplow-afro-la/enriched/good/2024/01/02/04/b.gz": "B",
	}}
	s := NewS3Store(fake, testCfg(), nil)

	keys, err := s.List(context.Background(), "lnl-snowplow-afro-la", "enriched/good/2024/01/02/03")
	require.NoError(t, err)
	assert.Equal(t, []string{"enriched/good/2024/01/02/03/a.gz"}, keys)

	rc, err := s.Open(context.Background(), "lnl-snowplow-afro-la", keys[0])
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "A", string(b))
}

func TestS3Store_RetriesTransientErrors(t *testing.T) {
	fake := &fakeS3{
		objects:  map[string]string{"b/k": "x"},
		failures: 1,
	}
	m := metrics.New()
	s := NewS3Store(fake, testCfg(), m)

	_, err := s.Open(context.Background(), "b", "k")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlobErrors.WithLabelValues("get")))
}

func TestS3Store_GivesUpAfterAttempts(t *testing.T) {
	fake := &fakeS3{failures: 10}
	cfg := testCfg()
	cfg.S3AppRetries = 2
	s := NewS3Store(fake, cfg, nil)

	_, err := s.List(context.Background(), "b", "p")
	require.Error(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestS3Store_MissingKeyIsFinal(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}}
	s := NewS3Store(fake, testCfg(), nil)

	_, err := s.Open(context.Background(), "b", "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fake.calls)
}

func TestS3Store_CanceledContext(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, testCfg(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.List(ctx, "b", "p")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.calls)
}

// sdkStore builds a store on the real SDK client, pointed at h.
func sdkStore(t *testing.T, h http.Handler, attempts int, m *metrics.Metrics) *S3Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ENDPOINT_URL", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	cfg := config.Config{
		AWSRegion:    "us-east-1",
		S3Endpoint:   srv.URL,
		S3Timeout:    5 * time.Second,
		S3AppRetries: attempts,
	}
	client, err := NewS3Client(context.Background(), cfg)
	require.NoError(t, err)
	return NewS3Store(client, cfg, m)
}

func TestS3Client_NoSDKRetries(t *testing.T) {
	for _, attempts := range []int{1, 2} {
		var requests atomic.Int32
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>SlowDown</Code><Message>slow down</Message></Error>`)
		})
		m := metrics.New()
		s := sdkStore(t, h, attempts, m)

		_, err := s.List(context.Background(), "lnl-snowplow-afro-la", "enriched/good/2024/01/02/03")
		require.Error(t, err)
		// one HTTP request per application attempt
		assert.Equal(t, int32(attempts), requests.Load(), "attempts=%d", attempts)
		assert.Equal(t, float64(attempts), testutil.ToFloat64(m.BlobErrors.WithLabelValues("list")))
	}
}

func TestS3Client_ListThroughEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
			`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`+
			`<Name>lnl-snowplow-afro-la</Name><Prefix>enriched/good/2024/01/02/03</Prefix>`+
			`<KeyCount>1</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`+
			`<Contents><Key>enriched/good/2024/01/02/03/a.gz</Key><Size>1</Size></Contents>`+
			`</ListBucketResult>`)
	})
	s := sdkStore(t, h, 3, nil)

	keys, err := s.List(context.Background(), "lnl-snowplow-afro-la", "enriched/good/2024/01/02/03")
	require.NoError(t, err)
	assert.Equal(t, []string{"enriched/good/2024/01/02/03/a.gz"}, keys)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "/lnl-snowplow-afro-la"), "path-style addressing: %s", paths[0])
}

func TestDir_ListAndOpen(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("bkt/enriched/good/2024/01/02/03/b.gz", "B")
	write("bkt/enriched/good/2024/01/02/03/a.gz", "A")
	write("bkt/enriched/good/2024/01/02/04/c.gz", "C")

	d := NewDir(root)
	keys, err := d.List(context.Background(), "bkt", "enriched/good/2024/01/02/03")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"enriched/good/2024/01/02/03/a.gz",
		"enriched/good/2024/01/02/03/b.gz",
	}, keys)

	rc, err := d.Open(context.Background(), "bkt", keys[1])
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "B", string(b))
}

func TestDir_Missing(t *testing.T) {
	d := NewDir(t.TempDir())

	_, err := d.List(context.Background(), "nope", "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.Open(context.Background(), "nope", "k")
	require.ErrorIs(t, err, ErrNotFound)
}
