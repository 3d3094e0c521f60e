package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
mqtt:
  address: broker.local
  port: 8883
  roottopic: home/nodeconf
  username: user
  password: password
db:
  directory: /var/lib/nodeconf
loglevel: 3
`

func writeConfig(t *testing.T, content string) string {
	filename := filepath.Join(t.TempDir(), "configuration.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0600))

	return filename
}

func TestInitReadsFile(t *testing.T) {
	svc, err := Init(writeConfig(t, testConfig))
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	assert.Equal(t, "broker.local", cfg.MqttConfiguration.Address)
	assert.Equal(t, uint16(8883), cfg.MqttConfiguration.Port)
	assert.Equal(t, "home/nodeconf", cfg.MqttConfiguration.RootTopic)
	assert.Equal(t, "user", cfg.MqttConfiguration.Username)
	assert.Equal(t, "/var/lib/nodeconf", cfg.DBConfiguration.Directory)
	assert.Equal(t, Default().DBConfiguration.ValueLogFileSize, cfg.DBConfiguration.ValueLogFileSize)
	assert.Equal(t, 3, cfg.LogLevel)
	assert.True(t, strings.HasPrefix(cfg.MqttConfiguration.ClientID, "nodeconf-"))
}

func TestInitMissingFileUsesDefaults(t *testing.T) {
	svc, err := Init(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	assert.Equal(t, Default().MqttConfiguration.Address, cfg.MqttConfiguration.Address)
	assert.Equal(t, Default().MqttConfiguration.Port, cfg.MqttConfiguration.Port)
	assert.Equal(t, Default().DBConfiguration.Directory, cfg.DBConfiguration.Directory)
}

func TestInitEnvironmentOverride(t *testing.T) {
	t.Setenv("NODECONF_MQTT_ADDRESS", "env.broker")
	t.Setenv("NODECONF_MQTT_PORT", "1884")

	svc, err := Init(writeConfig(t, testConfig))
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	assert.Equal(t, "env.broker", cfg.MqttConfiguration.Address)
	assert.Equal(t, uint16(1884), cfg.MqttConfiguration.Port)
}

func TestInitRejectsInvalidConfiguration(t *testing.T) {
	_, err := Init(writeConfig(t, "mqtt:\n  roottopic: nodes/#\n"))
	assert.Error(t, err)
	assert.True(t, errors.IsNotValid(errors.Cause(err)))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(cfg))

	bad := cfg
	bad.MqttConfiguration.Port = 0
	assert.Error(t, Validate(bad))

	bad = cfg
	bad.MqttConfiguration.RootTopic = "nodeconf/"
	assert.Error(t, Validate(bad))

	bad = cfg
	bad.DBConfiguration.ValueLogFileSize = 10
	assert.Error(t, Validate(bad))

	bad = cfg
	bad.LogLevel = 4
	assert.Error(t, Validate(bad))

	inMemory := cfg
	inMemory.DBConfiguration.Directory = ""
	inMemory.DBConfiguration.InMemory = true
	assert.NoError(t, Validate(inMemory))
}

func TestUpdate(t *testing.T) {
	filename := writeConfig(t, testConfig)
	svc, err := Init(filename)
	require.NoError(t, err)

	cfg := svc.GetConfiguration()
	cfg.MqttConfiguration.RootTopic = "sensors"
	require.NoError(t, svc.Update(cfg))
	assert.Equal(t, "sensors", svc.GetConfiguration().MqttConfiguration.RootTopic)

	reloaded, err := Init(filename)
	require.NoError(t, err)
	assert.Equal(t, "sensors", reloaded.GetConfiguration().MqttConfiguration.RootTopic)
	assert.Equal(t, cfg.MqttConfiguration.ClientID, reloaded.GetConfiguration().MqttConfiguration.ClientID)

	cfg.MqttConfiguration.Address = ""
	assert.Error(t, svc.Update(cfg))
	assert.Equal(t, "broker.local", svc.GetConfiguration().MqttConfiguration.Address)
}
