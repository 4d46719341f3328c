package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string                          `json:"name"`
	Status      HealthStatus                    `json:"status"`
	Message     string                          `json:"message,omitempty"`
	LastChecked time.Time                       `json:"last_checked"`
	Duration    time.Duration                   `json:"duration"`
	CheckFunc   func(ctx context.Context) error `json:"-"`
}

// HealthChecker manages health checks for the application
type HealthChecker struct {
	mu           sync.RWMutex
	checks       map[string]*HealthCheck
	globalStatus HealthStatus
	lastUpdate   time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:       make(map[string]*HealthCheck),
		globalStatus: HealthStatusUnknown,
		lastUpdate:   time.Now(),
	}
}

// RegisterCheck registers a new health check, replacing one of the same name
func (hc *HealthChecker) RegisterCheck(name string, checkFunc func(ctx context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = &HealthCheck{
		Name:      name,
		Status:    HealthStatusUnknown,
		CheckFunc: checkFunc,
	}
}

// RunCheck executes a specific health check
func (hc *HealthChecker) RunCheck(ctx context.Context, name string) error {
	hc.mu.RLock()
	check, exists := hc.checks[name]
	hc.mu.RUnlock()

	if !exists {
		return fmt.Errorf("health check %s not found", name)
	}

	start := time.Now()
	err := check.CheckFunc(ctx)
	duration := time.Since(start)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	check.Duration = duration
	check.LastChecked = time.Now()
	if err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
		check.Message = ""
	}
	return err
}

// RunAllChecks executes all registered health checks and returns the
// errors of the failed ones
func (hc *HealthChecker) RunAllChecks(ctx context.Context) map[string]error {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	failed := make(map[string]error)
	for _, name := range names {
		if err := hc.RunCheck(ctx, name); err != nil {
			failed[name] = err
		}
	}

	hc.updateGlobalStatus()
	return failed
}

func (hc *HealthChecker) updateGlobalStatus() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.lastUpdate = time.Now()
	if len(hc.checks) == 0 {
		hc.globalStatus = HealthStatusUnknown
		return
	}

	status := HealthStatusHealthy
	for _, check := range hc.checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			hc.globalStatus = HealthStatusUnhealthy
			return
		case HealthStatusUnknown:
			status = HealthStatusUnknown
		}
	}
	hc.globalStatus = status
}

// GetStatus returns the current health status with a copy of the checks
func (hc *HealthChecker) GetStatus() (HealthStatus, map[string]*HealthCheck) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	checksCopy := make(map[string]*HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checksCopy[name] = &HealthCheck{
			Name:        check.Name,
			Status:      check.Status,
			Message:     check.Message,
			LastChecked: check.LastChecked,
			Duration:    check.Duration,
		}
	}
	return hc.globalStatus, checksCopy
}

// HealthHandler returns an HTTP handler running all checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		failed := hc.RunAllChecks(ctx)
		globalStatus, checks := hc.GetStatus()
		for name, err := range failed {
			Warn("health check failed", zap.String("check", name), zap.Error(err))
		}

		httpStatus := http.StatusServiceUnavailable
		if globalStatus == HealthStatusHealthy {
			httpStatus = http.StatusOK
		}
		c.JSON(httpStatus, gin.H{
			"status":    globalStatus,
			"timestamp": time.Now(),
			"checks":    checks,
		})
	}
}

// DirectoryReadableCheck fails unless dir is a listable directory
func DirectoryReadableCheck(dir string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		f, err := os.Open(dir)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("cannot list %s: %w", dir, err)
		}
		return nil
	}
}

// DirectoryWritableCheck fails unless a file can be created in dir
func DirectoryWritableCheck(dir string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}

// FileWatcherHealthCheck checks if the content watcher is running
func FileWatcherHealthCheck(fw *FileWatcher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fw == nil {
			return fmt.Errorf("file watcher is nil")
		}
		if !fw.IsRunning() {
			return ErrWatcherNotRunning
		}
		if len(fw.WatchedDirectories()) == 0 {
			return fmt.Errorf("no directories being watched")
		}
		return nil
	}
}

// RegisterDefaultHealthChecks registers the checks of the configured components
func RegisterDefaultHealthChecks(hc *HealthChecker, ctx *Context) {
	hc.RegisterCheck("data_dir", DirectoryReadableCheck(ctx.Config.DataDir))
	hc.RegisterCheck("picture_cache_dir", DirectoryWritableCheck(ctx.Config.PictureCacheDir))

	if ctx.FileWatcher != nil {
		hc.RegisterCheck("file_watcher", FileWatcherHealthCheck(ctx.FileWatcher))
	}

	hc.RegisterCheck("goroutines", func(ctx context.Context) error {
		if count := runtime.NumGoroutine(); count > 10000 {
			return fmt.Errorf("high goroutine count: %d", count)
		}
		return nil
	})
}
