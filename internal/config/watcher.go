package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变更并在重新加载成功后通知订阅者。
// 加载失败时保留旧配置，并通过 OnError 回调报告。
type Watcher struct {
	path string

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	onError  func(error)
}

// NewWatcher 创建配置监听器，initial 为已经加载好的配置。
func NewWatcher(path string, initial *Config) *Watcher {
	return &Watcher{path: path, current: initial}
}

// Config 返回当前生效的配置。
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange 注册配置变更回调。
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// OnError 设置重新加载失败时的回调。
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Reload 立即重新读取配置文件并通知订阅者。
func (w *Watcher) Reload() (*Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

// Watch 在后台监听配置文件，直到 ctx 被取消。
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return fmt.Errorf("config watcher add %s: %w", w.path, err)
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := w.Reload(); err != nil {
						w.reportError(err)
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.reportError(err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) reportError(err error) {
	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
