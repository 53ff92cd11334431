// Package config loads process configuration from environment
// variables (and an optional config file) via viper: broker settings,
// per-device driver overrides, state/media paths, and the admin HTTP
// bind address.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pixoo-scened/internal/device"
)

// DeviceConfig is one configured device: its host/ID and the driver
// kind it starts with.
type DeviceConfig struct {
	Host string
	Kind device.Kind
}

// Config is the fully resolved process configuration.
type Config struct {
	// Devices lists every device this daemon drives, host=kind pairs
	// parsed from PIXOO_DEVICES ("10.0.0.1=real;10.0.0.2=mock").
	Devices []DeviceConfig
	// DefaultDriver is used for a device listed without an explicit kind.
	DefaultDriver device.Kind

	MQTTBrokerURL       string
	MQTTClientID        string
	MQTTUsername        string
	MQTTPassword        string
	MQTTReconnectOnDrop bool

	StatePath  string
	MediaDir   string
	SceneDir   string
	SecretsDir string
	SecretsKey string

	HTTPAddr string
	LogLevel string
	LogFile  string
}

// Load builds a Config from the environment, applying the defaults §6
// describes ("Absent file is normal"; env vars always take precedence
// over an optional config file at configPath).
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIXOO")
	v.AutomaticEnv()

	v.SetDefault("driver", string(device.KindMock))
	v.SetDefault("mqtt_broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt_client_id", "pixoo-scened")
	v.SetDefault("mqtt_reconnect", true)
	v.SetDefault("http_addr", ":8090")
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	devices, err := parseDevices(v.GetString("devices"), device.Kind(v.GetString("driver")))
	if err != nil {
		return Config{}, err
	}

	return Config{
		Devices:             devices,
		DefaultDriver:       device.Kind(v.GetString("driver")),
		MQTTBrokerURL:       v.GetString("mqtt_broker_url"),
		MQTTClientID:        v.GetString("mqtt_client_id"),
		MQTTUsername:        v.GetString("mqtt_username"),
		MQTTPassword:        v.GetString("mqtt_password"),
		MQTTReconnectOnDrop: v.GetBool("mqtt_reconnect"),
		StatePath:           v.GetString("state_path"),
		MediaDir:            v.GetString("media_dir"),
		SceneDir:            v.GetString("scene_dir"),
		SecretsDir:          v.GetString("secrets_dir"),
		SecretsKey:          v.GetString("secrets_key"),
		HTTPAddr:            v.GetString("http_addr"),
		LogLevel:            v.GetString("log_level"),
		LogFile:             v.GetString("log_file"),
	}, nil
}

// parseDevices reads "host=kind;host=kind" (kind optional, falling
// back to defaultKind) per §6's per-device driver override format.
func parseDevices(raw string, defaultKind device.Kind) ([]DeviceConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ";")
	out := make([]DeviceConfig, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, kind := entry, defaultKind
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			host = strings.TrimSpace(entry[:idx])
			kindStr := strings.TrimSpace(entry[idx+1:])
			if kindStr != "" {
				kind = device.Kind(kindStr)
			}
		}
		if host == "" {
			return nil, fmt.Errorf("malformed device entry %q: empty host", entry)
		}
		if kind != device.KindReal && kind != device.KindMock {
			return nil, fmt.Errorf("malformed device entry %q: unknown driver kind %q", entry, kind)
		}
		out = append(out, DeviceConfig{Host: host, Kind: kind})
	}
	return out, nil
}

// Debounce is the State Store's persistence coalescing interval (§5).
func Debounce() time.Duration { return 10 * time.Second }
