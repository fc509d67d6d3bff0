package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajprasad1994/opsBuddy/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultDialTimeout = 5 * time.Second

// EtcdSource implements the config.Source interface for a services document
// stored under a single etcd key.
type EtcdSource struct {
	client  *clientv3.Client
	key     string
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
}

// EtcdConfig represents etcd connection configuration
type EtcdConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Timeout   time.Duration `yaml:"timeout"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
}

// NewEtcdSource creates a new etcd-based services source and verifies
// that the first endpoint answers a status request.
func NewEtcdSource(cfg *EtcdConfig, key string) (config.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("etcd config cannot be nil")
	}

	if key == "" {
		return nil, fmt.Errorf("etcd key cannot be empty")
	}

	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	clientConfig := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.Timeout,
	}
	if clientConfig.DialTimeout == 0 {
		clientConfig.DialTimeout = defaultDialTimeout
	}

	if cfg.Username != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientConfig.DialTimeout)
	defer cancel()

	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &EtcdSource{
		client:  client,
		key:     key,
		timeout: clientConfig.DialTimeout,
	}, nil
}

// Get reads the value of the configured key.
func (es *EtcdSource) Get(ctx context.Context) ([]byte, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if es.closed {
		return nil, fmt.Errorf("etcd source is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, es.timeout)
	defer cancel()

	resp, err := es.client.Get(ctx, es.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s from etcd: %w", es.key, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("key %s not found in etcd", es.key)
	}

	return resp.Kvs[0].Value, nil
}

// Close closes the etcd client. Calling it more than once is safe.
func (es *EtcdSource) Close() error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.closed {
		return nil
	}
	es.closed = true

	if es.client != nil {
		return es.client.Close()
	}
	return nil
}
