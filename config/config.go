// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/iso"
	"github.com/spf13/viper"
)

type (
	// Config is the complete service configuration.
	Config struct {
		MQTT     MQTT     `mapstructure:"mqtt"`
		Store    Store    `mapstructure:"store"`
		HTTP     HTTP     `mapstructure:"http"`
		Pipeline Pipeline `mapstructure:"pipeline"`
		Hub      Hub      `mapstructure:"hub"`
		Log      Log      `mapstructure:"log"`
	}

	// MQTT configures the broker connection.
	MQTT struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`

		TLS                bool   `mapstructure:"tls"`
		InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
		CAFile             string `mapstructure:"ca_file"`
		CertFile           string `mapstructure:"cert_file"`
		KeyFile            string `mapstructure:"key_file"`
		KeyPasswordFile    string `mapstructure:"key_password_file"`

		Username     string `mapstructure:"username"`
		Password     string `mapstructure:"password"`
		PasswordFile string `mapstructure:"password_file"`

		ClientID       string       `mapstructure:"client_id"`
		TopicRoot      string       `mapstructure:"topic_root"`
		QoS            int          `mapstructure:"qos"`
		KeepAlive      iso.Duration `mapstructure:"keep_alive"`
		ConnectTimeout iso.Duration `mapstructure:"connect_timeout"`
		MessageBuffer  int          `mapstructure:"message_buffer"`
	}

	// Store selects and configures the telemetry store.
	Store struct {
		// Driver is one of memory, sqlite or dynamodb.
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		PoolSize int    `mapstructure:"pool_size"`
		Table    string `mapstructure:"table"`
	}

	HTTP struct {
		Address         string       `mapstructure:"address"`
		ShutdownTimeout iso.Duration `mapstructure:"shutdown_timeout"`
	}

	Pipeline struct {
		Workers      int          `mapstructure:"workers"`
		QueueSize    int          `mapstructure:"queue_size"`
		StoreTimeout iso.Duration `mapstructure:"store_timeout"`
	}

	Hub struct {
		QueueSize    int          `mapstructure:"queue_size"`
		WriteTimeout iso.Duration `mapstructure:"write_timeout"`
	}

	Log struct {
		Level string `mapstructure:"level"`
	}
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ENVIRA"

var defaults = map[string]any{
	"mqtt.host":                 "localhost",
	"mqtt.port":                 8883,
	"mqtt.tls":                  true,
	"mqtt.insecure_skip_verify": false,
	"mqtt.ca_file":              "",
	"mqtt.cert_file":            "",
	"mqtt.key_file":             "",
	"mqtt.key_password_file":    "",
	"mqtt.username":             "",
	"mqtt.password":             "",
	"mqtt.password_file":        "",
	"mqtt.client_id":            "",
	"mqtt.topic_root":           "envira",
	"mqtt.qos":                  1,
	"mqtt.keep_alive":           "PT60S",
	"mqtt.connect_timeout":      "PT10S",
	"mqtt.message_buffer":       256,

	"store.driver":    DriverSQLite,
	"store.path":      "telemetry.db",
	"store.pool_size": 0,
	"store.table":     "",

	"http.address":          ":8000",
	"http.shutdown_timeout": "PT10S",

	"pipeline.workers":       4,
	"pipeline.queue_size":    64,
	"pipeline.store_timeout": "PT5S",

	"hub.queue_size":    64,
	"hub.write_timeout": "PT10S",

	"log.level": "info",
}

// Unprefixed variables accepted for compatibility with existing deployments.
var aliases = map[string]string{
	"mqtt.host":                 "MQTT_BROKER",
	"mqtt.port":                 "MQTT_PORT",
	"mqtt.username":             "MQTT_USERNAME",
	"mqtt.password":             "MQTT_PASSWORD",
	"mqtt.insecure_skip_verify": "MQTT_TLS_INSECURE",
}

// Load reads the configuration from the optional YAML file at path and the
// environment. Environment variables win over the file; ENVIRA_MQTT_HOST
// sets mqtt.host, and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(
			strings.ReplaceAll(key, ".", "_"),
		)
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, invalid("cannot bind environment", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid("cannot read config file", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeISO)); err != nil {
		return nil, invalid("cannot decode config", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(iso.Duration(0))

// decodeISO turns ISO 8601 strings into iso.Duration fields.
func decodeISO(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != durationType {
		return data, nil
	}
	d, err := iso.ParseDuration(data.(string))
	if err != nil {
		return nil, fmt.Errorf("%q is not an ISO 8601 duration: %w", data, err)
	}
	return iso.Duration(d), nil
}

// Validate checks the values Load cannot express as types.
func (c *Config) Validate() error {
	m := c.MQTT
	switch {
	case m.Host == "":
		return invalidValue("mqtt.host", m.Host)
	case m.Port <= 0 || m.Port > 65535:
		return invalidValue("mqtt.port", m.Port)
	case m.QoS < 0 || m.QoS > 2:
		return invalidValue("mqtt.qos", m.QoS)
	case m.TopicRoot == "" || strings.ContainsAny(m.TopicRoot, "+#"):
		return invalidValue("mqtt.topic_root", m.TopicRoot)
	case m.KeepAlive < 0:
		return invalidValue("mqtt.keep_alive", m.KeepAlive)
	case m.ConnectTimeout <= 0:
		return invalidValue("mqtt.connect_timeout", m.ConnectTimeout)
	case m.Password != "" && m.PasswordFile != "":
		return invalidValue("mqtt.password_file", m.PasswordFile)
	case (m.CertFile == "") != (m.KeyFile == ""):
		return invalidValue("mqtt.key_file", m.KeyFile)
	case m.KeyPasswordFile != "" && m.KeyFile == "":
		return invalidValue("mqtt.key_password_file", m.KeyPasswordFile)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return invalidValue("store.path", c.Store.Path)
		}
	case DriverDynamoDB:
		if c.Store.Table == "" {
			return invalidValue("store.table", c.Store.Table)
		}
	default:
		return invalidValue("store.driver", c.Store.Driver)
	}

	switch {
	case c.HTTP.Address == "":
		return invalidValue("http.address", c.HTTP.Address)
	case c.HTTP.ShutdownTimeout <= 0:
		return invalidValue("http.shutdown_timeout", c.HTTP.ShutdownTimeout)
	case c.Pipeline.Workers <= 0:
		return invalidValue("pipeline.workers", c.Pipeline.Workers)
	case c.Pipeline.QueueSize <= 0:
		return invalidValue("pipeline.queue_size", c.Pipeline.QueueSize)
	case c.Pipeline.StoreTimeout <= 0:
		return invalidValue("pipeline.store_timeout", c.Pipeline.StoreTimeout)
	case c.Hub.QueueSize <= 0:
		return invalidValue("hub.queue_size", c.Hub.QueueSize)
	case c.Hub.WriteTimeout <= 0:
		return invalidValue("hub.write_timeout", c.Hub.WriteTimeout)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return invalidValue("log.level", c.Log.Level)
	}
	return nil
}

// Broker returns the broker address as host:port.
func (m MQTT) Broker() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// TopicFilter returns the telemetry subscription filter under the topic root.
func (m MQTT) TopicFilter() string {
	return m.TopicRoot + "/+/+/telemetry"
}

// SlogLevel parses the configured level name.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

func invalid(msg, name string, err error) error {
	return &errors.Error{
		Kind:         errors.ConfigurationInvalid,
		Message:      msg,
		NestedError:  err,
		PropertyName: name,
	}
}

func invalidValue(name string, value any) error {
	return &errors.Error{
		Kind:          errors.ConfigurationInvalid,
		Message:       "invalid configuration value",
		PropertyName:  name,
		PropertyValue: value,
	}
}
