package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/ports/output"
)

const partialSuffix = ".partial"

// ArtifactCache keeps model files on local disk and the loaded handles in memory.
// Population of a given name runs at most once at a time; concurrent callers
// wait for it and share the result.
type ArtifactCache struct {
	loader  ports.ModelLoader
	fetcher ports.ArtifactFetcher
	ledger  ports.ArtifactLedger

	group   singleflight.Group
	timeout time.Duration

	// closing is canceled by Close and aborts any population still running.
	closing  context.Context
	shutdown context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	status  map[string]*domain.ArtifactStatus
}

type cacheEntry struct {
	model    ports.Model
	loadedAt time.Time
}

// NewArtifactCache creates a cache. ledger may be nil.
func NewArtifactCache(loader ports.ModelLoader, fetcher ports.ArtifactFetcher, ledger ports.ArtifactLedger) *ArtifactCache {
	closing, shutdown := context.WithCancel(context.Background())
	return &ArtifactCache{
		loader:   loader,
		fetcher:  fetcher,
		ledger:   ledger,
		closing:  closing,
		shutdown: shutdown,
		entries:  make(map[string]*cacheEntry),
		status:   make(map[string]*domain.ArtifactStatus),
	}
}

// WithTimeout bounds each population run. Zero means no bound beyond Close.
func (c *ArtifactCache) WithTimeout(d time.Duration) *ArtifactCache {
	c.timeout = d
	return c
}

// Ensure returns a loaded model for spec.Name. A verified handle is memoized
// for the life of the cache; later calls return it without touching disk or
// network. A call performs at most one download.
//
// Population runs detached from ctx. ctx only bounds how long this caller
// waits; other waiters are unaffected when it ends.
func (c *ArtifactCache) Ensure(ctx context.Context, spec domain.ArtifactSpec) (ports.Model, error) {
	if m, ok := c.cached(spec.Name); ok {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.group.DoChan(spec.Name, func() (interface{}, error) {
		if m, ok := c.cached(spec.Name); ok {
			return m, nil
		}
		popCtx, cancel := c.detach(ctx)
		defer cancel()
		m, err := c.populate(popCtx, spec)
		if err != nil {
			return nil, err
		}
		return m, nil
	})

	select {
	case <-ctx.Done():
		log.WithField("artifact", spec.Name).Debug("caller stopped waiting for artifact population")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.WithField("artifact", spec.Name).Debug("joined in-flight artifact population")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(ports.Model), nil
	}
}

// detach keeps ctx values but drops its cancellation. The result is canceled
// by the cache timeout or by Close.
func (c *ArtifactCache) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	popCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if c.timeout > 0 {
		popCtx, cancel = context.WithTimeout(popCtx, c.timeout)
	} else {
		popCtx, cancel = context.WithCancel(popCtx)
	}
	stop := context.AfterFunc(c.closing, cancel)
	return popCtx, func() {
		stop()
		cancel()
	}
}

func (c *ArtifactCache) populate(ctx context.Context, spec domain.ArtifactSpec) (ports.Model, error) {
	logger := log.WithFields(log.Fields{"artifact": spec.Name, "remote_id": spec.RemoteID})

	info, err := os.Stat(spec.Name)
	switch {
	case err == nil && info.IsDir():
		return nil, c.fail(spec, domain.ArtifactStateInvalid,
			fmt.Errorf("%w: %s is a directory", domain.ErrArtifactInvalid, spec.Name))
	case err == nil:
		c.setState(spec, domain.ArtifactStateUnverified, info.Size())
		model, digest, loadErr := c.loadLocal(ctx, spec)
		if loadErr == nil {
			c.memoize(spec, model, info.Size())
			c.record(ctx, spec, domain.OutcomeCached, info.Size(), digest, "")
			logger.WithField("size_bytes", info.Size()).Info("model artifact loaded from local cache")
			return model, nil
		}

		if interrupted(ctx, loadErr) {
			// The file was never judged, so it stays for the next attempt.
			return nil, c.fail(spec, domain.ArtifactStateUnverified,
				fmt.Errorf("%w: %w", domain.ErrArtifactLoad, loadErr))
		}

		logger.WithError(loadErr).Warn("local model artifact unusable, deleting before download")
		c.record(ctx, spec, domain.OutcomeEvicted, info.Size(), digest, loadErr.Error())
		if err := removeIfExists(spec.Name); err != nil {
			return nil, c.fail(spec, domain.ArtifactStateInvalid,
				fmt.Errorf("%w: remove unusable artifact: %w", domain.ErrArtifactInvalid, err))
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, c.fail(spec, domain.ArtifactStateInvalid,
			fmt.Errorf("%w: stat %s: %w", domain.ErrArtifactInvalid, spec.Name, err))
	}

	return c.download(ctx, spec)
}

// loadLocal verifies the digest when one is configured and opens the file.
func (c *ArtifactCache) loadLocal(ctx context.Context, spec domain.ArtifactSpec) (ports.Model, string, error) {
	var digest string
	if spec.SHA256 != "" {
		d, err := fileDigest(spec.Name)
		if err != nil {
			return nil, "", fmt.Errorf("hash local artifact: %w", err)
		}
		digest = d
		if digest != spec.SHA256 {
			return nil, digest, fmt.Errorf("sha256 mismatch: got %s, want %s", digest, spec.SHA256)
		}
	}

	model, err := c.loader.Load(ctx, spec.Name)
	if err != nil {
		return nil, digest, err
	}
	return model, digest, nil
}

func (c *ArtifactCache) download(ctx context.Context, spec domain.ArtifactSpec) (ports.Model, error) {
	logger := log.WithFields(log.Fields{"artifact": spec.Name, "remote_id": spec.RemoteID})

	if spec.RemoteID == "" {
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: no remote id configured for %s", domain.ErrNetwork, spec.Name))
	}

	if dir := filepath.Dir(spec.Name); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, c.fail(spec, domain.ArtifactStateAbsent,
				fmt.Errorf("%w: create artifact dir: %w", domain.ErrArtifactInvalid, err))
		}
	}

	partial := spec.Name + partialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: create %s: %w", domain.ErrArtifactInvalid, partial, err))
	}

	c.setState(spec, domain.ArtifactStateDownloading, 0)
	logger.Info("downloading model artifact")
	start := time.Now()

	h := sha256.New()
	_, fetchErr := c.fetcher.Fetch(ctx, spec.RemoteID, io.MultiWriter(f, h))
	closeErr := f.Close()
	if fetchErr != nil {
		_ = removeIfExists(partial)
		c.record(ctx, spec, domain.OutcomeNetworkFailed, 0, "", fetchErr.Error())
		return nil, c.fail(spec, domain.ArtifactStateAbsent, fmt.Errorf("%w: %w", domain.ErrNetwork, fetchErr))
	}
	if closeErr != nil {
		_ = removeIfExists(partial)
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: write %s: %w", domain.ErrArtifactInvalid, partial, closeErr))
	}

	info, err := os.Stat(partial)
	if err != nil {
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: downloaded file missing: %w", domain.ErrArtifactInvalid, err))
	}
	size := info.Size()
	digest := hex.EncodeToString(h.Sum(nil))

	if size < spec.MinSize {
		_ = removeIfExists(partial)
		detail := fmt.Sprintf("%d bytes, below minimum of %d", size, spec.MinSize)
		c.record(ctx, spec, domain.OutcomeInvalid, size, digest, detail)
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: %s", domain.ErrArtifactInvalid, detail))
	}
	if spec.SHA256 != "" && digest != spec.SHA256 {
		_ = removeIfExists(partial)
		detail := fmt.Sprintf("sha256 mismatch: got %s, want %s", digest, spec.SHA256)
		c.record(ctx, spec, domain.OutcomeInvalid, size, digest, detail)
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: %s", domain.ErrArtifactInvalid, detail))
	}

	if err := os.Rename(partial, spec.Name); err != nil {
		_ = removeIfExists(partial)
		return nil, c.fail(spec, domain.ArtifactStateAbsent,
			fmt.Errorf("%w: move into place: %w", domain.ErrArtifactInvalid, err))
	}
	c.setState(spec, domain.ArtifactStateUnverified, size)

	model, err := c.loader.Load(ctx, spec.Name)
	if err != nil && interrupted(ctx, err) {
		return nil, c.fail(spec, domain.ArtifactStateUnverified,
			fmt.Errorf("%w: %w", domain.ErrArtifactLoad, err))
	}
	if err != nil {
		_ = removeIfExists(spec.Name)
		c.record(ctx, spec, domain.OutcomeLoadFailed, size, digest, err.Error())
		return nil, c.fail(spec, domain.ArtifactStateAbsent, fmt.Errorf("%w: %w", domain.ErrArtifactLoad, err))
	}

	c.memoize(spec, model, size)
	c.record(ctx, spec, domain.OutcomeDownloaded, size, digest, "")
	logger.WithFields(log.Fields{
		"size_bytes":  size,
		"sha256":      digest,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("model artifact downloaded and loaded")

	return model, nil
}

// Status reports what is observable about name without loading it.
func (c *ArtifactCache) Status(spec domain.ArtifactSpec) domain.ArtifactStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var st domain.ArtifactStatus
	if s, ok := c.status[spec.Name]; ok {
		st = *s
	} else {
		st = domain.ArtifactStatus{Name: spec.Name, RemoteID: spec.RemoteID, State: domain.ArtifactStateAbsent}
	}

	if info, err := os.Stat(spec.Name); err == nil && !info.IsDir() {
		st.Present = true
		st.SizeBytes = info.Size()
		if st.State == domain.ArtifactStateAbsent {
			st.State = domain.ArtifactStateUnverified
		}
	} else {
		st.Present = false
	}

	if e, ok := c.entries[spec.Name]; ok {
		loadedAt := e.loadedAt
		st.State = domain.ArtifactStateReady
		st.LoadedAt = &loadedAt
		st.LastError = ""
	}
	return st
}

// Events lists recent ledger entries for name.
func (c *ArtifactCache) Events(ctx context.Context, name string, limit int) ([]*domain.ArtifactEvent, error) {
	if c.ledger == nil {
		return nil, domain.ErrLedgerDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return c.ledger.ListRecent(ctx, name, limit)
}

// Close aborts populations still running and releases every memoized model.
func (c *ArtifactCache) Close() error {
	c.shutdown()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for name, e := range c.entries {
		if err := e.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(c.entries, name)
	}
	return errors.Join(errs...)
}

func (c *ArtifactCache) cached(name string) (ports.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.model, true
}

func (c *ArtifactCache) memoize(spec domain.ArtifactSpec, model ports.Model, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	c.entries[spec.Name] = &cacheEntry{model: model, loadedAt: now}
	c.status[spec.Name] = &domain.ArtifactStatus{
		Name:      spec.Name,
		RemoteID:  spec.RemoteID,
		State:     domain.ArtifactStateReady,
		Present:   true,
		SizeBytes: size,
		LoadedAt:  &now,
	}
}

func (c *ArtifactCache) setState(spec domain.ArtifactSpec, state domain.ArtifactState, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.status[spec.Name]
	if !ok {
		st = &domain.ArtifactStatus{Name: spec.Name, RemoteID: spec.RemoteID}
		c.status[spec.Name] = st
	}
	st.State = state
	st.SizeBytes = size
}

// fail records err as the last error for spec and returns it.
func (c *ArtifactCache) fail(spec domain.ArtifactSpec, state domain.ArtifactState, err error) error {
	c.mu.Lock()
	st, ok := c.status[spec.Name]
	if !ok {
		st = &domain.ArtifactStatus{Name: spec.Name, RemoteID: spec.RemoteID}
		c.status[spec.Name] = st
	}
	st.State = state
	st.LastError = err.Error()
	c.mu.Unlock()

	log.WithFields(log.Fields{"artifact": spec.Name, "remote_id": spec.RemoteID}).
		WithError(err).Error("model artifact unavailable")
	return err
}

func (c *ArtifactCache) record(ctx context.Context, spec domain.ArtifactSpec, outcome domain.ArtifactOutcome, size int64, digest, detail string) {
	if c.ledger == nil {
		return
	}
	event := domain.NewArtifactEvent(spec, outcome, size, digest, detail)
	if err := c.ledger.Record(ctx, event); err != nil {
		log.WithError(err).WithField("outcome", outcome).Warn("record artifact event failed")
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// interrupted reports whether err came from ctx ending rather than from the
// artifact itself.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
