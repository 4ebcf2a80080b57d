package identify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"plant-id/api/internal/engine"
	"plant-id/api/internal/plant"
	"plant-id/api/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

type fakeEngine struct {
	raw   any
	err   error
	calls int
	mime  string
}

func (f *fakeEngine) Name() string     { return "gemini" }
func (f *fakeEngine) GetModel() string { return "gemini-test" }
func (f *fakeEngine) Identify(_ context.Context, _ []byte, mime string) (any, error) {
	f.calls++
	f.mime = mime
	return f.raw, f.err
}

type fakeCache struct {
	mu   sync.Mutex
	rows map[string]plant.Record
	err  error
}

func (c *fakeCache) FindByHash(_ context.Context, hash, eng, model string, _ time.Duration) (*store.IdentifiedRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	rec, ok := c.rows[hash+eng+model]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.IdentifiedRow{ImageHash: hash, Engine: eng, Model: model, Record: rec}, nil
}

func (c *fakeCache) Upsert(_ context.Context, hash, eng, model string, rec plant.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows == nil {
		c.rows = map[string]plant.Record{}
	}
	c.rows[hash+eng+model] = rec
	return nil
}

func newService(eng engine.Engine, opts Options) (*Service, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(&engine.Engines{Gemini: eng}, opts, zap.New(core)), logs
}

func TestIdentify_Success(t *testing.T) {
	eng := &fakeEngine{raw: "```json\n{\"scientificName\":\"Rosa rubiginosa\"}\n```"}
	svc, _ := newService(eng, Options{})

	res, err := svc.Identify(context.Background(), Request{Image: jpeg, RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, plant.Text("Rosa rubiginosa"), res.Record.ScientificName)
	assert.Equal(t, "gemini", res.Engine)
	assert.Equal(t, "gemini-test", res.Model)
	assert.Equal(t, "r1", res.RequestID)
	assert.False(t, res.Cached)
	assert.Equal(t, "image/jpeg", eng.mime)
}

func TestIdentify_InvocationFailure(t *testing.T) {
	eng := &fakeEngine{err: errors.New("connection reset")}
	svc, logs := newService(eng, Options{})

	res, err := svc.Identify(context.Background(), Request{Image: jpeg})
	pe, ok := plant.AsError(err)
	require.True(t, ok)
	assert.Equal(t, plant.ModelInvocationFailed, pe.Kind)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, logs.FilterMessage("model invocation failed").Len())
}

func TestIdentify_MalformedIsLoggedWithCleanedText(t *testing.T) {
	eng := &fakeEngine{raw: "```json\nnot json at all\n```"}
	svc, logs := newService(eng, Options{})

	_, err := svc.Identify(context.Background(), Request{Image: jpeg})
	pe, ok := plant.AsError(err)
	require.True(t, ok)
	assert.Equal(t, plant.MalformedResponse, pe.Kind)

	entries := logs.FilterMessage("failed to normalize model response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "not json at all", entries[0].ContextMap()["cleaned"])
}

func TestIdentify_UnsupportedResponseType(t *testing.T) {
	svc, _ := newService(&fakeEngine{raw: 42}, Options{})
	_, err := svc.Identify(context.Background(), Request{Image: jpeg})
	pe, ok := plant.AsError(err)
	require.True(t, ok)
	assert.Equal(t, plant.UnsupportedResponseType, pe.Kind)
}

func TestIdentify_RejectsBeforeNetworkCall(t *testing.T) {
	eng := &fakeEngine{raw: "{}"}
	svc, _ := newService(eng, Options{MaxImageBytes: 8})

	_, err := svc.Identify(context.Background(), Request{Image: jpeg})
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = svc.Identify(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = svc.Identify(context.Background(), Request{Image: []byte("%PDF-1"), MIME: "application/pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	assert.Equal(t, 0, eng.calls)
}

func TestIdentify_DefaultLimitIsTenMiB(t *testing.T) {
	svc, _ := newService(&fakeEngine{}, Options{})
	assert.Equal(t, int64(10<<20), svc.MaxImageBytes())
	assert.NoError(t, svc.CheckSize(10<<20))
	assert.ErrorIs(t, svc.CheckSize(10<<20+1), ErrImageTooLarge)
}

func TestIdentify_UnknownEngine(t *testing.T) {
	svc, _ := newService(&fakeEngine{}, Options{})
	_, err := svc.Identify(context.Background(), Request{Image: jpeg, Engine: "yandex"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestIdentify_Cache(t *testing.T) {
	eng := &fakeEngine{raw: `{"genus":"Rosa"}`}
	cache := &fakeCache{}
	svc, _ := newService(eng, Options{Cache: cache, CacheMaxAge: time.Hour})

	first, err := svc.Identify(context.Background(), Request{Image: jpeg})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Identify(context.Background(), Request{Image: jpeg})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, 1, eng.calls)
}

func TestIdentify_CacheErrorFallsThrough(t *testing.T) {
	eng := &fakeEngine{raw: `{"genus":"Rosa"}`}
	svc, logs := newService(eng, Options{Cache: &fakeCache{err: errors.New("db down")}})

	res, err := svc.Identify(context.Background(), Request{Image: jpeg})
	require.NoError(t, err)
	assert.Equal(t, plant.Text("Rosa"), res.Record.Genus)
	assert.Equal(t, 1, logs.FilterMessage("cache lookup failed").Len())
}

func TestIdentify_FailuresAreNotCached(t *testing.T) {
	eng := &fakeEngine{raw: "oops"}
	cache := &fakeCache{}
	svc, _ := newService(eng, Options{Cache: cache})

	_, err := svc.Identify(context.Background(), Request{Image: jpeg})
	require.Error(t, err)
	assert.Empty(t, cache.rows)
}

func TestTooLargeMessage(t *testing.T) {
	assert.Equal(t, "File is too large. Please choose an image smaller than 10 MB.", TooLargeMessage(10<<20))
	assert.Equal(t, "File is too large. Please choose an image smaller than 1.5 MB.", TooLargeMessage(3<<19))
	assert.Equal(t, "File is too large. Please choose an image smaller than 2 KB.", TooLargeMessage(2000))
}
