package config

import (
	"context"
	"fmt"

	"github.com/ajprasad1994/opsBuddy/internal/config/source/etcd"
	"github.com/ajprasad1994/opsBuddy/internal/config/source/file"
	pkgConfig "github.com/ajprasad1994/opsBuddy/pkg/config"
	"gopkg.in/yaml.v3"
)

// Services source drivers
const (
	SourceInline = "inline"
	SourceFile   = "file"
	SourceEtcd   = "etcd"
)

// CreateServicesSource returns the source selected by services_source.driver.
// The inline driver has no external source and yields (nil, nil).
func CreateServicesSource(cfg *Config) (pkgConfig.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	sourceConfig := cfg.ServicesSource

	switch sourceConfig.Driver {
	case "", SourceInline:
		return nil, nil
	case SourceFile:
		return createFileSource(sourceConfig)
	case SourceEtcd:
		return createEtcdSource(sourceConfig)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, sourceConfig.Driver)
	}
}

func createFileSource(sourceConfig ServicesSourceConfig) (pkgConfig.Source, error) {
	if sourceConfig.File.Path == "" {
		return nil, fmt.Errorf("file path is required for file source driver")
	}

	source, err := file.NewFileSource(sourceConfig.File.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file source: %w", err)
	}
	return source, nil
}

func createEtcdSource(sourceConfig ServicesSourceConfig) (pkgConfig.Source, error) {
	etcdConfig := sourceConfig.Etcd

	if len(etcdConfig.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required for etcd source driver")
	}
	if etcdConfig.Key == "" {
		return nil, fmt.Errorf("etcd key is required for etcd source driver")
	}

	source, err := etcd.NewEtcdSource(&etcd.EtcdConfig{
		Endpoints: etcdConfig.Endpoints,
		Timeout:   etcdConfig.Timeout,
		Username:  etcdConfig.Username,
		Password:  etcdConfig.Password,
	}, etcdConfig.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd source: %w", err)
	}
	return source, nil
}

// servicesDocument is the shape of an external services document.
type servicesDocument struct {
	Services []ServiceConfig `yaml:"services"`
}

// LoadServices replaces cfg.Services with the list read from source and
// re-validates the result. A nil source leaves the inline list untouched.
func LoadServices(ctx context.Context, cfg *Config, source pkgConfig.Source) error {
	if source == nil {
		return nil
	}

	data, err := source.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read services: %w", err)
	}

	var doc servicesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse services document: %w", err)
	}
	if len(doc.Services) == 0 {
		return ErrNoServices
	}

	cfg.Services = doc.Services
	applyServiceEnv(cfg)

	if err := validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
