package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/testutil"
)

const testMinSize = 1024

func setupCache(t *testing.T) (*testutil.MockModelLoader, *testutil.MockArtifactFetcher, *ArtifactCache, domain.ArtifactSpec) {
	t.Helper()
	loader := new(testutil.MockModelLoader)
	fetcher := new(testutil.MockArtifactFetcher)
	cache := NewArtifactCache(loader, fetcher, nil)

	spec := domain.ArtifactSpec{
		Name:     filepath.Join(t.TempDir(), "models", "cassava.onnx"),
		RemoteID: "remote-1",
		MinSize:  testMinSize,
	}
	return loader, fetcher, cache, spec
}

func writeArtifact(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := bytes.Repeat([]byte{0x5a}, size)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return data
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestArtifactCache_ValidLocalFile_NoDownload(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)
	writeArtifact(t, spec.Name, 50<<20)

	model := new(testutil.MockModel)
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	first, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	second, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)

	assert.Same(t, model, first)
	assert.Same(t, model, second)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	loader.AssertNumberOfCalls(t, "Load", 1)
}

func TestArtifactCache_MissingFile_DownloadsOnce(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	payload := bytes.Repeat([]byte{0x01}, 4096)
	model := new(testutil.MockModel)
	fetcher.On("Fetch", mock.Anything, "remote-1").Return(payload, nil).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	got, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, model, got)

	onDisk, err := os.ReadFile(spec.Name)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
	assert.NoFileExists(t, spec.Name+partialSuffix)

	_, err = cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestArtifactCache_SmallDownload_IsInvalid(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	fetcher.On("Fetch", mock.Anything, "remote-1").Return(bytes.Repeat([]byte("<"), 500), nil).Once()

	_, err := cache.Ensure(context.Background(), spec)
	assert.ErrorIs(t, err, domain.ErrArtifactInvalid)
	assert.NoFileExists(t, spec.Name)
	assert.NoFileExists(t, spec.Name+partialSuffix)
	loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestArtifactCache_CorruptLocalFile_Redownloads(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)
	writeArtifact(t, spec.Name, 2048)

	model := new(testutil.MockModel)
	loader.On("Load", mock.Anything, spec.Name).Return(nil, errors.New("protobuf parse error")).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()
	fetcher.On("Fetch", mock.Anything, "remote-1").Return(bytes.Repeat([]byte{0x02}, 4096), nil).Once()

	got, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, model, got)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	loader.AssertNumberOfCalls(t, "Load", 2)
}

func TestArtifactCache_DownloadUnloadable_NoLoop(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)
	writeArtifact(t, spec.Name, 2048)

	loader.On("Load", mock.Anything, spec.Name).Return(nil, errors.New("not an onnx model"))
	fetcher.On("Fetch", mock.Anything, "remote-1").Return(bytes.Repeat([]byte{0x03}, 4096), nil)

	_, err := cache.Ensure(context.Background(), spec)
	assert.ErrorIs(t, err, domain.ErrArtifactLoad)
	assert.NoFileExists(t, spec.Name)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	loader.AssertNumberOfCalls(t, "Load", 2)
}

func TestArtifactCache_NetworkFailure(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	cause := errors.New("connection reset by peer")
	fetcher.On("Fetch", mock.Anything, "remote-1").Return([]byte("partial"), cause).Once()

	_, err := cache.Ensure(context.Background(), spec)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, cause)
	assert.NoFileExists(t, spec.Name+partialSuffix)
	loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)

	st := cache.Status(spec)
	assert.False(t, st.Present)
	assert.Contains(t, st.LastError, "connection reset")
}

func TestArtifactCache_FailureIsNotMemoized(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	model := new(testutil.MockModel)
	fetcher.On("Fetch", mock.Anything, "remote-1").Return(nil, errors.New("timeout")).Once()
	fetcher.On("Fetch", mock.Anything, "remote-1").Return(bytes.Repeat([]byte{0x04}, 4096), nil).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	_, err := cache.Ensure(context.Background(), spec)
	require.ErrorIs(t, err, domain.ErrNetwork)

	got, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, model, got)
}

func TestArtifactCache_MissingRemoteID(t *testing.T) {
	_, fetcher, cache, spec := setupCache(t)
	spec.RemoteID = ""

	_, err := cache.Ensure(context.Background(), spec)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestArtifactCache_Checksum(t *testing.T) {
	payload := bytes.Repeat([]byte{0x07}, 4096)

	t.Run("download mismatch", func(t *testing.T) {
		loader, fetcher, cache, spec := setupCache(t)
		spec.SHA256 = digestOf([]byte("something else"))
		fetcher.On("Fetch", mock.Anything, "remote-1").Return(payload, nil).Once()

		_, err := cache.Ensure(context.Background(), spec)
		assert.ErrorIs(t, err, domain.ErrArtifactInvalid)
		assert.NoFileExists(t, spec.Name)
		loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
	})

	t.Run("download match", func(t *testing.T) {
		loader, fetcher, cache, spec := setupCache(t)
		spec.SHA256 = digestOf(payload)
		fetcher.On("Fetch", mock.Anything, "remote-1").Return(payload, nil).Once()
		loader.On("Load", mock.Anything, spec.Name).Return(new(testutil.MockModel), nil).Once()

		_, err := cache.Ensure(context.Background(), spec)
		assert.NoError(t, err)
	})

	t.Run("local mismatch evicts", func(t *testing.T) {
		loader, fetcher, cache, spec := setupCache(t)
		writeArtifact(t, spec.Name, 2048)
		spec.SHA256 = digestOf(payload)
		fetcher.On("Fetch", mock.Anything, "remote-1").Return(payload, nil).Once()
		loader.On("Load", mock.Anything, spec.Name).Return(new(testutil.MockModel), nil).Once()

		_, err := cache.Ensure(context.Background(), spec)
		require.NoError(t, err)
		fetcher.AssertNumberOfCalls(t, "Fetch", 1)
		loader.AssertNumberOfCalls(t, "Load", 1)
	})
}

func TestArtifactCache_ConcurrentEnsure_SinglePopulation(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	model := new(testutil.MockModel)
	fetcher.On("Fetch", mock.Anything, "remote-1").
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(bytes.Repeat([]byte{0x05}, 4096), nil)
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Ensure(context.Background(), spec)
			if err == nil && got != model {
				err = errors.New("unexpected model handle")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	loader.AssertNumberOfCalls(t, "Load", 1)
}

func TestArtifactCache_RecordsLedgerEvents(t *testing.T) {
	loader := new(testutil.MockModelLoader)
	fetcher := new(testutil.MockArtifactFetcher)
	ledger := new(testutil.MockArtifactLedger)
	cache := NewArtifactCache(loader, fetcher, ledger)
	spec := domain.ArtifactSpec{
		Name:     filepath.Join(t.TempDir(), "cassava.onnx"),
		RemoteID: "remote-1",
		MinSize:  testMinSize,
	}

	fetcher.On("Fetch", mock.Anything, "remote-1").Return(bytes.Repeat([]byte{0x06}, 4096), nil).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(new(testutil.MockModel), nil).Once()
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(e *domain.ArtifactEvent) bool {
		return e.Outcome == domain.OutcomeDownloaded && e.SizeBytes == 4096 && e.ArtifactName == spec.Name
	})).Return(errors.New("db down")).Once()

	_, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err, "ledger failures must not fail Ensure")
	ledger.AssertExpectations(t)
}

func TestArtifactCache_Events(t *testing.T) {
	_, _, cache, spec := setupCache(t)
	_, err := cache.Events(context.Background(), spec.Name, 10)
	assert.ErrorIs(t, err, domain.ErrLedgerDisabled)

	ledger := new(testutil.MockArtifactLedger)
	withLedger := NewArtifactCache(new(testutil.MockModelLoader), new(testutil.MockArtifactFetcher), ledger)
	events := []*domain.ArtifactEvent{domain.NewArtifactEvent(spec, domain.OutcomeCached, 10, "", "")}
	ledger.On("ListRecent", mock.Anything, spec.Name, 100).Return(events, nil).Once()

	got, err := withLedger.Events(context.Background(), spec.Name, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestArtifactCache_StatusAndClose(t *testing.T) {
	loader, _, cache, spec := setupCache(t)

	st := cache.Status(spec)
	assert.Equal(t, domain.ArtifactStateAbsent, st.State)
	assert.False(t, st.Present)

	writeArtifact(t, spec.Name, 2048)
	st = cache.Status(spec)
	assert.Equal(t, domain.ArtifactStateUnverified, st.State)
	assert.Equal(t, int64(2048), st.SizeBytes)

	model := new(testutil.MockModel)
	model.On("Close").Return(nil).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	_, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)

	st = cache.Status(spec)
	assert.Equal(t, domain.ArtifactStateReady, st.State)
	assert.NotNil(t, st.LoadedAt)

	require.NoError(t, cache.Close())
	model.AssertExpectations(t)
}

func waitForDone(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}

func TestArtifactCache_CanceledCaller_KeepsLocalFile(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)
	writeArtifact(t, spec.Name, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Ensure(ctx, spec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, spec.Name)

	model := new(testutil.MockModel)
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	got, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, model, got)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestArtifactCache_InterruptedLocalLoad_KeepsFile(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)
	cache.WithTimeout(20 * time.Millisecond)
	writeArtifact(t, spec.Name, 4096)

	loader.On("Load", mock.Anything, spec.Name).
		Run(waitForDone).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := cache.Ensure(context.Background(), spec)
	assert.ErrorIs(t, err, domain.ErrArtifactLoad)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.FileExists(t, spec.Name)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)

	model := new(testutil.MockModel)
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	got, err := cache.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, model, got)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestArtifactCache_CanceledCallerDoesNotFailSharedDownload(t *testing.T) {
	loader, fetcher, cache, spec := setupCache(t)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	model := new(testutil.MockModel)
	fetcher.On("Fetch", mock.Anything, "remote-1").
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(bytes.Repeat([]byte{0x07}, 4096), nil).Once()
	loader.On("Load", mock.Anything, spec.Name).Return(model, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Ensure(ctx, spec)
		firstErr <- err
	}()
	<-started

	type result struct {
		model interface{}
		err   error
	}
	second := make(chan result, 1)
	go func() {
		m, err := cache.Ensure(context.Background(), spec)
		second <- result{m, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Same(t, model, res.model)
	assert.FileExists(t, spec.Name)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	loader.AssertNumberOfCalls(t, "Load", 1)
}

func TestArtifactCache_CloseAbortsPopulation(t *testing.T) {
	_, fetcher, cache, spec := setupCache(t)

	started := make(chan struct{}, 1)
	fetcher.On("Fetch", mock.Anything, "remote-1").
		Run(func(args mock.Arguments) {
			started <- struct{}{}
			waitForDone(args)
		}).
		Return(nil, context.Canceled).Once()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Ensure(context.Background(), spec)
		done <- err
	}()
	<-started

	require.NoError(t, cache.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrNetwork)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("population kept running after Close")
	}
	assert.NoFileExists(t, spec.Name+partialSuffix)
}

func TestModelProvider_CallerCancelIsNotUnavailable(t *testing.T) {
	_, fetcher, cache, spec := setupCache(t)
	provider := NewModelProvider(cache, spec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	st := provider.Status()
	assert.Equal(t, ModelStateNotLoaded, st.State)
	assert.Empty(t, st.Error)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}
