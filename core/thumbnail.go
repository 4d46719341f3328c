package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	ThumbnailQuality = 90
	// NormalizedHeight is the height of the box portrait thumbnails are
	// cropped to when normalization is requested: round(200 * 3 / 4).
	NormalizedHeight = 150
)

var errThumbnailCacheStopped = errors.New("thumbnail cache stopped")

// ThumbnailKey derives the cache key of a resized image
func ThumbnailKey(source string, width, height int, normalize bool) string {
	id := fmt.Sprintf("%s-%d-%d", source, width, height)
	if normalize {
		id += "-n"
	}
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// TargetSize computes the thumbnail size preserving the aspect ratio
func TargetSize(srcWidth, srcHeight, width int) (int, int) {
	height := int(math.Round(float64(width) * float64(srcHeight) / float64(srcWidth)))
	if height < 1 {
		height = 1
	}
	return width, height
}

// ThumbnailStats are counters of a ThumbnailCache
type ThumbnailStats struct {
	Hits      int64
	Misses    int64
	Generated int64
}

type thumbnailCall struct {
	done chan struct{}
	path string
	err  error
}

type thumbnailJob struct {
	key       string
	source    string
	target    string
	width     int
	height    int
	normalize bool
	call      *thumbnailCall
}

// ThumbnailCache produces resized JPEG renditions of images and keeps them
// in a flat directory forever. Resizing runs on a fixed pool of workers;
// concurrent requests of the same key share one generation.
type ThumbnailCache struct {
	dir      string
	workers  int
	mu       sync.Mutex
	inflight map[string]*thumbnailCall
	jobs     chan thumbnailJob
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hits      atomic.Int64
	misses    atomic.Int64
	generated atomic.Int64
}

// NewThumbnailCache creates the cache directory if needed and starts
// the workers. A non-positive workers value means one per CPU.
func NewThumbnailCache(dir string, workers int) (*ThumbnailCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: picture cache directory", ErrEmptyDirectory)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, NewThumbnailError("mkdir", dir, fmt.Errorf("%w: %v", ErrCacheWrite, err))
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tc := &ThumbnailCache{
		dir:      dir,
		workers:  workers,
		inflight: make(map[string]*thumbnailCall),
		jobs:     make(chan thumbnailJob),
		stopped:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		tc.wg.Add(1)
		go tc.worker()
	}
	Debug("thumbnail cache started", zap.String("dir", dir), zap.Int("workers", workers))
	return tc, nil
}

// Stop terminates the workers. Generations in progress are finished.
func (tc *ThumbnailCache) Stop() {
	tc.stopOnce.Do(func() {
		close(tc.stopped)
		tc.wg.Wait()
		Debug("thumbnail cache stopped", zap.String("dir", tc.dir))
	})
}

// Dir returns the cache directory
func (tc *ThumbnailCache) Dir() string {
	return tc.dir
}

// PathFor returns the cache file of a key
func (tc *ThumbnailCache) PathFor(key string) string {
	return filepath.Join(tc.dir, key+".jpg")
}

// Stats returns a snapshot of the cache counters
func (tc *ThumbnailCache) Stats() ThumbnailStats {
	return ThumbnailStats{
		Hits:      tc.hits.Load(),
		Misses:    tc.misses.Load(),
		Generated: tc.generated.Load(),
	}
}

// Get returns the path of source resized to width, generating it on the
// first request. An existing cache file is returned as is, regardless of
// the modification time of the source.
func (tc *ThumbnailCache) Get(ctx context.Context, source string, width int, normalize bool) (string, error) {
	if width <= 0 {
		return "", NewValidationError("width", width, "must be a positive integer")
	}

	srcWidth, srcHeight, err := imageDimensions(source)
	if err != nil {
		RecordThumbnail("error")
		return "", NewThumbnailError("decode", source, fmt.Errorf("%w: %v", ErrImageDecode, err))
	}

	w, h := TargetSize(srcWidth, srcHeight, width)
	key := ThumbnailKey(source, w, h, normalize)
	target := tc.PathFor(key)
	if PageExists(target) {
		tc.hits.Add(1)
		RecordThumbnail("hit")
		return target, nil
	}

	tc.mu.Lock()
	call, running := tc.inflight[key]
	if !running {
		call = &thumbnailCall{done: make(chan struct{})}
		tc.inflight[key] = call
	}
	tc.mu.Unlock()

	if !running {
		tc.misses.Add(1)
		RecordThumbnail("miss")
		job := thumbnailJob{
			key:       key,
			source:    source,
			target:    target,
			width:     w,
			height:    h,
			normalize: normalize,
			call:      call,
		}
		go tc.submit(job)
	}

	// the generation is not bound to ctx: a leaving client neither
	// interrupts a write in progress nor fails the callers sharing the key
	select {
	case <-call.done:
		return call.path, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Purge removes all cache files. It returns the number of removed files.
func (tc *ThumbnailCache) Purge() (int, error) {
	entries, err := os.ReadDir(tc.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".tmp")) {
			continue
		}
		if err := os.Remove(filepath.Join(tc.dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	Info("thumbnail cache purged", zap.String("dir", tc.dir), zap.Int("files", removed))
	return removed, nil
}

// submit blocks until a worker takes the job
func (tc *ThumbnailCache) submit(job thumbnailJob) {
	select {
	case tc.jobs <- job:
	case <-tc.stopped:
		tc.finish(job, "", errThumbnailCacheStopped)
	}
}

func (tc *ThumbnailCache) finish(job thumbnailJob, path string, err error) {
	tc.mu.Lock()
	delete(tc.inflight, job.key)
	tc.mu.Unlock()

	job.call.path = path
	job.call.err = err
	close(job.call.done)
}

func (tc *ThumbnailCache) worker() {
	defer tc.wg.Done()
	for {
		select {
		case <-tc.stopped:
			return
		case job := <-tc.jobs:
			path, err := tc.generate(job)
			if err != nil {
				RecordThumbnail("error")
				Warn("thumbnail generation failed", zap.String("source", job.source), zap.Error(err))
			}
			tc.finish(job, path, err)
		}
	}
}

func (tc *ThumbnailCache) generate(job thumbnailJob) (string, error) {
	// another caller may have published the file in the meantime
	if PageExists(job.target) {
		return job.target, nil
	}

	start := time.Now()
	img, err := imaging.Open(job.source)
	if err != nil {
		return "", NewThumbnailError("decode", job.source, fmt.Errorf("%w: %v", ErrImageDecode, err))
	}

	thumb := ResizeImage(img, job.width, job.height, job.normalize)
	err = writeFileAtomic(job.target, func(w io.Writer) error {
		return imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailQuality))
	})
	if err != nil {
		return "", NewThumbnailError("write", job.target, fmt.Errorf("%w: %v", ErrCacheWrite, err))
	}

	tc.generated.Add(1)
	ObserveThumbnailGeneration(time.Since(start))
	Debug("thumbnail generated",
		zap.String("source", job.source),
		zap.String("target", job.target),
		zap.Int("width", job.width),
		zap.Int("height", job.height),
		zap.Bool("normalize", job.normalize))
	return job.target, nil
}

// ResizeImage scales img to width x height. A portrait result is cropped
// to the fixed width x NormalizedHeight box anchored at the top left when
// normalize is set. The returned image is fully opaque.
func ResizeImage(img image.Image, width, height int, normalize bool) *image.NRGBA {
	dst := imaging.Resize(img, width, height, imaging.Lanczos)
	b := dst.Bounds()
	if normalize && b.Dy() > b.Dx() {
		dst = imaging.Crop(dst, image.Rect(0, 0, width, NormalizedHeight))
		b = dst.Bounds()
	}
	background := imaging.New(b.Dx(), b.Dy(), color.Black)
	return imaging.Overlay(background, dst, image.Pt(0, 0), 1.0)
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
