// Package control implements the optional control-plane link
// reconfiguration SPEC_FULL.md's DOMAIN STACK names: an operator
// writes a new link.Config as JSON to an etcd key, and every running
// rdt-bench instance watching that key hot-reloads its channel's
// links without a restart.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/aetherflow/rdt/internal/rdt/link"
)

// Config holds the etcd client's connection settings.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// LinkUpdate is the JSON document written to the watched key: which
// direction ("ab" or "ba") the new config applies to.
type LinkUpdate struct {
	Direction string      `json:"direction"`
	Config    link.Config `json:"config"`
}

// ApplyFunc is called with each LinkUpdate read off the watched key,
// so the caller can route it to the right Channel's Reconfigure.
type ApplyFunc func(update LinkUpdate) error

// Watcher watches one etcd key (an exact key, not a prefix) for
// link.Config updates and
// applies them via an ApplyFunc, grounded on
// internal/gateway/discovery/etcd.go's EtcdClient.Watch, trimmed to
// the watch/apply half of that file — this package has no service
// registration or keep-alive concern, since rdt-bench is not itself a
// discoverable service.
type Watcher struct {
	client *clientv3.Client
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher connects to etcd per cfg.
func NewWatcher(cfg Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.Username != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("control: creating etcd client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger.Info("control watcher connected", zap.Strings("endpoints", cfg.Endpoints))
	return &Watcher{client: client, logger: logger, ctx: ctx, cancel: cancel}, nil
}

// Watch fetches key's current value (if any) and applies it, then
// watches for subsequent PUTs, applying each via apply. It returns
// once the initial fetch/apply completes; subsequent updates are
// handled on a background goroutine until Close.
func (w *Watcher) Watch(key string, apply ApplyFunc) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return fmt.Errorf("control: watcher is closed")
	}
	w.mu.RUnlock()

	resp, err := w.client.Get(w.ctx, key)
	if err != nil {
		return fmt.Errorf("control: fetching %s: %w", key, err)
	}
	for _, kv := range resp.Kvs {
		if err := w.applyOne(kv.Value, apply); err != nil {
			w.logger.Warn("control: rejecting initial config", zap.Error(err))
		}
	}

	watchCh := w.client.Watch(w.ctx, key)
	go func() {
		w.logger.Info("control watcher started", zap.String("key", key))
		for {
			select {
			case <-w.ctx.Done():
				return
			case watchResp, ok := <-watchCh:
				if !ok {
					w.logger.Warn("control watch channel closed")
					return
				}
				if watchResp.Err() != nil {
					w.logger.Error("control watch error", zap.Error(watchResp.Err()))
					continue
				}
				for _, event := range watchResp.Events {
					if event.Type != clientv3.EventTypePut {
						continue
					}
					if err := w.applyOne(event.Kv.Value, apply); err != nil {
						w.logger.Warn("control: rejecting update",
							zap.String("key", string(event.Kv.Key)), zap.Error(err))
					}
				}
			}
		}
	}()

	return nil
}

// parseLinkUpdate decodes and validates raw as a LinkUpdate, kept
// free of any etcd dependency so it can be exercised directly by
// tests that don't have a live etcd to watch.
func parseLinkUpdate(raw []byte) (LinkUpdate, error) {
	var update LinkUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return LinkUpdate{}, fmt.Errorf("parsing link update: %w", err)
	}
	if err := update.Config.Validate(); err != nil {
		return LinkUpdate{}, fmt.Errorf("validating link update: %w", err)
	}
	return update, nil
}

func (w *Watcher) applyOne(raw []byte, apply ApplyFunc) error {
	update, err := parseLinkUpdate(raw)
	if err != nil {
		return err
	}
	if err := apply(update); err != nil {
		return fmt.Errorf("applying link update: %w", err)
	}
	w.logger.Info("control: applied link update",
		zap.String("direction", update.Direction),
		zap.Float64("loss", update.Config.Loss),
	)
	return nil
}

// Put writes a LinkUpdate to key, the operator side of the same
// protocol (used by a CLI or test harness driving a live
// reconfiguration).
func (w *Watcher) Put(key string, update LinkUpdate) error {
	raw, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("control: marshaling link update: %w", err)
	}
	_, err = w.client.Put(w.ctx, key, string(raw))
	if err != nil {
		return fmt.Errorf("control: writing %s: %w", key, err)
	}
	return nil
}

// Close stops the watch goroutine and closes the etcd client.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()
	return w.client.Close()
}
