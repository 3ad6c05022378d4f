// 配置文件变更监听器实现。
//
// 轮询配置文件的修改时间，变更后重新加载、校验并通知订阅者。
package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 监听器类型定义 ---

// Change 是一个字段的变化，Path 为 Go 字段路径，如 Log.Level
type Change struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(old, new *Config, changes []Change)

// Watcher 监听配置文件并在变更后重新加载
type Watcher struct {
	mu sync.RWMutex

	loader   *Loader
	interval time.Duration
	current  *Config
	lastMod  time.Time

	callbacks []ReloadCallback
	logger    *zap.Logger

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 监听器实现 ---

// NewWatcher 创建监听器。loader 必须设置了配置文件路径，current 是已生效的配置。
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.Path() == "" {
		return nil, fmt.Errorf("watcher requires a config file path")
	}
	if current == nil {
		return nil, fmt.Errorf("watcher requires the current config")
	}
	w := &Watcher{
		loader:   loader,
		interval: time.Second,
		current:  current,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if info, err := os.Stat(loader.Path()); err == nil {
		w.lastMod = info.ModTime()
	} else if os.IsNotExist(err) {
		w.logger.Warn("Config file does not exist, will watch for creation", zap.String("path", loader.Path()))
	} else {
		return nil, fmt.Errorf("failed to stat path %s: %w", loader.Path(), err)
	}
	return w, nil
}

// OnReload registers a callback for successful reloads
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current 返回当前生效的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("Config watcher started",
		zap.String("path", w.loader.Path()),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop stops the watcher and waits for the poll loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("Config watcher stopped")
}

// IsRunning returns whether the watcher is running
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if w.modified() {
				if _, err := w.Reload(); err != nil {
					w.logger.Error("Config reload rejected, keeping previous config", zap.Error(err))
				}
			}
		}
	}
}

// modified reports whether the file's mtime moved since the last check
func (w *Watcher) modified() bool {
	info, err := os.Stat(w.loader.Path())
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !info.ModTime().After(w.lastMod) {
		return false
	}
	w.lastMod = info.ModTime()
	return true
}

// Reload 重新加载并校验配置。校验失败时保留旧配置。
func (w *Watcher) Reload() ([]Change, error) {
	next, err := w.loader.Load()
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	old := w.current
	changes := Diff(old, next)
	if len(changes) == 0 {
		w.mu.Unlock()
		return nil, nil
	}
	w.current = next
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, c := range changes {
		w.logger.Info("Configuration changed", zap.String("path", c.Path))
	}
	if err := notifySafe(callbacks, old, next, changes); err != nil {
		w.logger.Error("Reload callback failed", zap.Error(err))
	}
	return changes, nil
}

// notifySafe 通知回调并捕获 panic
func notifySafe(callbacks []ReloadCallback, old, next *Config, changes []Change) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range callbacks {
		cb(old, next, changes)
	}
	return nil
}

// Diff 递归比较两个配置，返回变化的叶子字段
func Diff(old, next *Config) []Change {
	var changes []Change
	compareStructs("", reflect.ValueOf(old).Elem(), reflect.ValueOf(next).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]Change) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}
		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct {
			compareStructs(path, of, nf, changes)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*changes = append(*changes, Change{Path: path, OldValue: of.Interface(), NewValue: nf.Interface()})
		}
	}
}
