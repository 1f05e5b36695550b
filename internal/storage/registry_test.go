package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter implements Adapter for registry and orchestration tests.
type fakeAdapter struct {
	tag        Provider
	failUpload bool

	mu       sync.Mutex
	uploads  int
	urlCalls int
}

func (f *fakeAdapter) Provider() Provider { return f.tag }

func (f *fakeAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	if f.failUpload {
		return nil, Errorf(KindUploadFailed, "%s: upload rejected", f.tag)
	}
	return &UploadResult{
		StorageFileID: ObjectKey(in),
		Metadata: Metadata{
			SizeBytes: int64(len(in.Body)),
			MimeType:  in.ContentType,
		},
	}, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeAdapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	return nil, nil
}

func (f *fakeAdapter) PublicURL(ctx context.Context, id string, expiresIn time.Duration) (string, error) {
	f.mu.Lock()
	f.urlCalls++
	f.mu.Unlock()
	return "https://" + string(f.tag) + ".example.com/" + id, nil
}

func (f *fakeAdapter) Exists(ctx context.Context, id string) (bool, error) { return true, nil }

func (f *fakeAdapter) ContentHash(ctx context.Context, id string) (string, error) {
	return "d41d8cd98f00b204e9800998ecf8427e", nil
}

func (f *fakeAdapter) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("data"))), nil
}

func (f *fakeAdapter) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func newTestRegistry(t *testing.T, adapters ...Adapter) *Registry {
	t.Helper()
	reg, err := NewRegistry(zerolog.Nop(), adapters...)
	require.NoError(t, err)
	return reg
}

func testInput() UploadInput {
	return UploadInput{Body: []byte("payload"), ContentType: "image/png", OriginalName: "photo.png"}
}

func TestNewRegistry(t *testing.T) {
	t.Run("RejectsEmptyAdapterList", func(t *testing.T) {
		_, err := NewRegistry(zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, KindValidationFailed, KindOf(err))
	})

	t.Run("RejectsDuplicateTags", func(t *testing.T) {
		_, err := NewRegistry(zerolog.Nop(),
			&fakeAdapter{tag: ProviderMinio},
			&fakeAdapter{tag: ProviderMinio},
		)
		require.Error(t, err)
		assert.Equal(t, KindValidationFailed, KindOf(err))
	})
}

func TestRoundRobinFairness(t *testing.T) {
	a := &fakeAdapter{tag: ProviderAWS}
	b := &fakeAdapter{tag: ProviderGoogle}
	c := &fakeAdapter{tag: ProviderMinio}
	reg := newTestRegistry(t, a, b, c)

	ctx := context.Background()
	var sequence []Provider
	for i := 0; i < 7; i++ {
		provider, _, err := reg.Upload(ctx, testInput(), 0)
		require.NoError(t, err)
		sequence = append(sequence, provider)
	}

	// 7 uploads over 3 adapters: usage is ceil(7/3)=3 or floor(7/3)=2 each,
	// in strict cyclic order from the starting offset.
	assert.Equal(t, []Provider{
		ProviderAWS, ProviderGoogle, ProviderMinio,
		ProviderAWS, ProviderGoogle, ProviderMinio,
		ProviderAWS,
	}, sequence)
	assert.Equal(t, 3, a.uploadCount())
	assert.Equal(t, 2, b.uploadCount())
	assert.Equal(t, 2, c.uploadCount())
}

func TestFailoverExhaustion(t *testing.T) {
	a := &fakeAdapter{tag: ProviderAWS, failUpload: true}
	b := &fakeAdapter{tag: ProviderGoogle, failUpload: true}
	c := &fakeAdapter{tag: ProviderMinio, failUpload: true}
	reg := newTestRegistry(t, a, b, c)

	_, _, err := reg.Upload(context.Background(), testInput(), 0)
	require.Error(t, err)
	assert.Equal(t, KindUploadFailed, KindOf(err))
	// The surfaced error wraps the last adapter's failure.
	assert.Contains(t, err.Error(), "minio: upload rejected")

	// Each adapter attempted exactly once, no more, no fewer.
	assert.Equal(t, 1, a.uploadCount())
	assert.Equal(t, 1, b.uploadCount())
	assert.Equal(t, 1, c.uploadCount())
}

func TestFailoverRecoversOnNextAdapter(t *testing.T) {
	// Two providers A, B with the cursor starting at A: upload 1 succeeds
	// on A and advances the cursor to B; upload 2 fails on B, retries and
	// succeeds on A. Bytes land on [A, A]; the cursor ends at B.
	a := &fakeAdapter{tag: ProviderAWS}
	b := &fakeAdapter{tag: ProviderGoogle, failUpload: true}
	reg := newTestRegistry(t, a, b)
	ctx := context.Background()

	p1, _, err := reg.Upload(ctx, testInput(), 0)
	require.NoError(t, err)
	assert.Equal(t, ProviderAWS, p1)

	p2, _, err := reg.Upload(ctx, testInput(), 0)
	require.NoError(t, err)
	assert.Equal(t, ProviderAWS, p2)

	assert.Equal(t, 2, a.uploadCount())
	assert.Equal(t, 1, b.uploadCount())
	// The cursor does not rewind on failure.
	assert.Equal(t, ProviderGoogle, reg.Next().Provider())
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	reg := newTestRegistry(t, &fakeAdapter{tag: ProviderMinio})
	_, _, err := reg.Upload(context.Background(), UploadInput{}, 0)
	require.Error(t, err)
	assert.Equal(t, KindValidationFailed, KindOf(err))
}

func TestByTag(t *testing.T) {
	a := &fakeAdapter{tag: ProviderAWS}
	reg := newTestRegistry(t, a)

	got, ok := reg.ByTag(ProviderAWS)
	require.True(t, ok)
	assert.Same(t, Adapter(a), got)

	_, ok = reg.ByTag(ProviderAzure)
	assert.False(t, ok)
}

func TestNextIsAtomicUnderConcurrency(t *testing.T) {
	adapters := []Adapter{
		&fakeAdapter{tag: ProviderAWS},
		&fakeAdapter{tag: ProviderGoogle},
		&fakeAdapter{tag: ProviderAzure},
		&fakeAdapter{tag: ProviderMinio},
	}
	reg := newTestRegistry(t, adapters...)

	const calls = 100
	counts := make(map[Provider]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := reg.Next().Provider()
			mu.Lock()
			counts[p]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 100 calls over 4 adapters: no lost updates means exactly 25 each.
	for _, a := range adapters {
		assert.Equal(t, calls/len(adapters), counts[a.Provider()], "adapter %s", a.Provider())
	}
}
