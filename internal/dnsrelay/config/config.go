// Package config loads the process configuration. Configuration loading is
// deliberately out of scope for the core - this package exists only so the
// binary in cmd/dnsrelayd has something to load, parsed into the core's own
// domain.Configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
)

// envPrefix namespaces environment-variable overrides, mirroring the
// teacher's DNS_ prefix under this project's own name.
const envPrefix = "DNSRELAY_"

// ServerEntry is one upstream's on-disk representation before it is
// resolved into a domain.ServerConfig.
type ServerEntry struct {
	Address string   `koanf:"address" validate:"required,ip_port"`
	Zones   []string `koanf:"zones"`
}

// AppConfig is the on-disk/env-var configuration shape, one layer above
// the core's domain.Configuration.
type AppConfig struct {
	Listen   string        `koanf:"listen" validate:"required,ip_port"`
	Servers  []ServerEntry `koanf:"servers" validate:"required,min=1,dive"`
	Search   []string      `koanf:"search"`
	Env      string        `koanf:"env" validate:"required,oneof=dev prod"`
	LogLevel string        `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// Default holds the configuration used when a value isn't present in the
// file or environment.
var Default = AppConfig{
	Listen:   "0.0.0.0:53",
	Servers:  []ServerEntry{{Address: "1.1.1.1:53"}, {Address: "1.0.0.1:53"}},
	Env:      "prod",
	LogLevel: "info",
}

// validIPPort mirrors the teacher's ip_port validator tag.
func validIPPort(fl validator.FieldLevel) bool {
	_, err := domain.ParseAddress(fl.Field().String())
	return err == nil
}

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads path (YAML), layers environment-variable overrides on top,
// and validates the result.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := k.Load(env.Provider(".", env.Opt{Prefix: envPrefix, TransformFunc: envTransform}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("config: register validation: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func envTransform(key, value string) (string, any) {
	return strings.ToLower(strings.TrimPrefix(key, envPrefix)), strings.TrimSpace(value)
}

// Watch reopens path on every filesystem change (via the file provider's
// built-in fsnotify watch) and publishes a freshly parsed and validated
// domain.Configuration on the returned channel. The listener is free to
// ignore updates and keep serving the configuration it booted with.
func Watch(path string) (<-chan domain.Configuration, func(), error) {
	f := file.Provider(path)
	k := koanf.New(".")
	if err := k.Load(f, yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("config: initial load %s: %w", path, err)
	}

	updates := make(chan domain.Configuration, 1)
	stop := make(chan struct{})

	f.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		cfg, loadErr := Load(path)
		if loadErr != nil {
			return
		}
		domainCfg, convErr := ToDomain(*cfg)
		if convErr != nil {
			return
		}
		select {
		case updates <- domainCfg:
		default:
			// Drop a stale pending update in favor of the newest one.
			select {
			case <-updates:
			default:
			}
			updates <- domainCfg
		}
	})

	return updates, func() { close(stop) }, nil
}

// ToDomain converts the on-disk shape into the core's domain.Configuration,
// resolving each server's address and zone labels.
func ToDomain(cfg AppConfig) (domain.Configuration, error) {
	servers := make([]domain.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		addr, err := domain.ParseAddress(s.Address)
		if err != nil {
			return domain.Configuration{}, fmt.Errorf("config: server %q: %w", s.Address, err)
		}
		zones := make([]domain.Name, 0, len(s.Zones))
		for _, z := range s.Zones {
			zones = append(zones, domain.ParseName(z))
		}
		servers = append(servers, domain.ServerConfig{Address: addr, Zones: zones})
	}
	return domain.Configuration{Servers: servers, Search: cfg.Search}, nil
}
