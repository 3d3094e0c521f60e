package provisioning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supby/nodeconf/internal/record"
)

const devicesYaml = `
devices:
  - id: bedroom
    confirmed: true
    brokerPort: 8883
    fields:
      broker: mqtt.example.com
      topicHumidity: home/bedroom/humidity
      wifiSsid: home
      wifiPass: secret
  - id: garage
    fields:
      broker: mqtt.example.com
`

func TestParse(t *testing.T) {
	provisions, err := Parse([]byte(devicesYaml))
	require.NoError(t, err)
	require.Len(t, provisions, 2)

	bedroom := provisions[0]
	assert.Equal(t, "bedroom", bedroom.DeviceID)
	assert.True(t, bedroom.Confirmed)
	require.NotNil(t, bedroom.BrokerPort)
	assert.Equal(t, uint16(8883), *bedroom.BrokerPort)
	assert.Equal(t, "home/bedroom/humidity", bedroom.Fields[record.FieldTopicHumidity])

	garage := provisions[1]
	assert.False(t, garage.Confirmed)
	assert.Nil(t, garage.BrokerPort)
	assert.Len(t, garage.Fields, 1)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("devices:\n  - fields:\n      broker: x\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("devices:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("devices:\n  - id: a\n    brokerPort: 70000\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("devices:\n  - id: a\n    color: red\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(devicesYaml), 0600))

	provisions, err := LoadFile(filename)
	require.NoError(t, err)
	assert.Len(t, provisions, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
