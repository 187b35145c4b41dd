// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/envira/ieq-pipeline/config"
	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/iso"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "envira.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "localhost:8883", cfg.MQTT.Broker())
	require.True(t, cfg.MQTT.TLS)
	require.Equal(t, "envira/+/+/telemetry", cfg.MQTT.TopicFilter())
	require.Equal(t, iso.Duration(time.Minute), cfg.MQTT.KeepAlive)
	require.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	require.Equal(t, ":8000", cfg.HTTP.Address)
	require.Equal(t, iso.Duration(5*time.Second), cfg.Pipeline.StoreTimeout)
	require.Equal(t, 64, cfg.Hub.QueueSize)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
}

func TestFile(t *testing.T) {
	path := writeFile(t, `
mqtt:
  host: broker.example.com
  port: 1883
  tls: false
  topic_root: site
  keep_alive: PT30S
  connect_timeout: PT1M30S
store:
  driver: memory
hub:
  write_timeout: PT2S
log:
  level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "broker.example.com:1883", cfg.MQTT.Broker())
	require.False(t, cfg.MQTT.TLS)
	require.Equal(t, "site/+/+/telemetry", cfg.MQTT.TopicFilter())
	require.Equal(t, iso.Duration(30*time.Second), cfg.MQTT.KeepAlive)
	require.Equal(t, iso.Duration(90*time.Second), cfg.MQTT.ConnectTimeout)
	require.Equal(t, config.DriverMemory, cfg.Store.Driver)
	require.Equal(t, iso.Duration(2*time.Second), cfg.Hub.WriteTimeout)
	require.Equal(t, 4, cfg.Pipeline.Workers)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestEnvironment(t *testing.T) {
	path := writeFile(t, "mqtt:\n  host: from-file\n  port: 1883\n")

	t.Run("Prefixed", func(t *testing.T) {
		t.Setenv("ENVIRA_MQTT_HOST", "from-env")
		t.Setenv("ENVIRA_PIPELINE_WORKERS", "8")
		t.Setenv("ENVIRA_HUB_WRITE_TIMEOUT", "PT3S")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "from-env:1883", cfg.MQTT.Broker())
		require.Equal(t, 8, cfg.Pipeline.Workers)
		require.Equal(t, iso.Duration(3*time.Second), cfg.Hub.WriteTimeout)
	})

	t.Run("Aliases", func(t *testing.T) {
		t.Setenv("MQTT_BROKER", "legacy")
		t.Setenv("MQTT_PORT", "8884")
		t.Setenv("MQTT_USERNAME", "envira")
		t.Setenv("MQTT_PASSWORD", "secret")
		t.Setenv("MQTT_TLS_INSECURE", "true")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "legacy:8884", cfg.MQTT.Broker())
		require.Equal(t, "envira", cfg.MQTT.Username)
		require.Equal(t, "secret", cfg.MQTT.Password)
		require.True(t, cfg.MQTT.InsecureSkipVerify)
	})

	t.Run("PrefixWins", func(t *testing.T) {
		t.Setenv("ENVIRA_MQTT_HOST", "prefixed")
		t.Setenv("MQTT_BROKER", "legacy")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "prefixed", cfg.MQTT.Host)
	})
}

func TestInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"Port":            "mqtt:\n  port: 70000\n",
		"QoS":             "mqtt:\n  qos: 3\n",
		"TopicRoot":       "mqtt:\n  topic_root: \"a/#\"\n",
		"Duration":        "mqtt:\n  keep_alive: 60s\n",
		"ZeroTimeout":     "mqtt:\n  connect_timeout: PT0S\n",
		"PasswordTwice":   "mqtt:\n  password: a\n  password_file: b\n",
		"CertWithoutKey":  "mqtt:\n  cert_file: client.crt\n",
		"Driver":          "store:\n  driver: mongodb\n",
		"SQLitePath":      "store:\n  path: \"\"\n",
		"DynamoDBTable":   "store:\n  driver: dynamodb\n",
		"Workers":         "pipeline:\n  workers: 0\n",
		"LogLevel":        "log:\n  level: loud\n",
		"MalformedYAML":   "mqtt: [\n",
		"HubQueue":        "hub:\n  queue_size: -1\n",
		"ShutdownTimeout": "http:\n  shutdown_timeout: P\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, content))
			require.Error(t, err)
			require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
	})
}
