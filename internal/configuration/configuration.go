package configuration

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "NODECONF"

func Default() Configuration {
	return Configuration{
		MqttConfiguration: MqttConfiguration{
			Address:   "localhost",
			Port:      1883,
			RootTopic: "nodeconf",
		},
		DBConfiguration: DBConfiguration{
			Directory:         "./data",
			ValueLogFileSize:  1024 * 1024 * 40,
			GCPeriodInSeconds: 600,
		},
		LogLevel: 0,
	}
}

type configurationService struct {
	filename string
	mutex    sync.RWMutex
	config   Configuration
}

// Init reads filename and NODECONF_* environment overrides,
// e.g. NODECONF_MQTT_ADDRESS. A missing file leaves the defaults.
func Init(filename string) (ConfigurationService, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Annotatef(err, "reading %v", filename)
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Annotatef(err, "decoding %v", filename)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Annotatef(err, "invalid configuration %v", filename)
	}

	return &configurationService{
		filename: filename,
		config:   withClientID(cfg),
	}, nil
}

func setDefaults(v *viper.Viper, cfg Configuration) {
	v.SetDefault("mqtt.address", cfg.MqttConfiguration.Address)
	v.SetDefault("mqtt.port", cfg.MqttConfiguration.Port)
	v.SetDefault("mqtt.roottopic", cfg.MqttConfiguration.RootTopic)
	v.SetDefault("mqtt.username", cfg.MqttConfiguration.Username)
	v.SetDefault("mqtt.password", cfg.MqttConfiguration.Password)
	v.SetDefault("mqtt.clientid", cfg.MqttConfiguration.ClientID)
	v.SetDefault("db.directory", cfg.DBConfiguration.Directory)
	v.SetDefault("db.inmemory", cfg.DBConfiguration.InMemory)
	v.SetDefault("db.valuelogfilesize", cfg.DBConfiguration.ValueLogFileSize)
	v.SetDefault("db.gcperiodinseconds", cfg.DBConfiguration.GCPeriodInSeconds)
	v.SetDefault("loglevel", cfg.LogLevel)
}

// withClientID gives every process its own MQTT client ID unless one is configured.
func withClientID(cfg Configuration) Configuration {
	if cfg.MqttConfiguration.ClientID == "" {
		cfg.MqttConfiguration.ClientID = fmt.Sprintf("nodeconf-%v", uuid.NewString())
	}

	return cfg
}

func Validate(cfg Configuration) error {
	mqttCfg := cfg.MqttConfiguration
	if mqttCfg.Address == "" {
		return errors.NotValidf("empty mqtt address")
	}
	if mqttCfg.Port == 0 {
		return errors.NotValidf("mqtt port 0")
	}
	if mqttCfg.RootTopic == "" || strings.ContainsAny(mqttCfg.RootTopic, "+#") ||
		strings.HasPrefix(mqttCfg.RootTopic, "/") || strings.HasSuffix(mqttCfg.RootTopic, "/") {
		return errors.NotValidf("mqtt root topic %q", mqttCfg.RootTopic)
	}

	dbCfg := cfg.DBConfiguration
	if !dbCfg.InMemory && dbCfg.Directory == "" {
		return errors.NotValidf("empty db directory")
	}
	if dbCfg.ValueLogFileSize < 1<<20 || dbCfg.ValueLogFileSize >= 2<<30 {
		return errors.NotValidf("db value log file size %d", dbCfg.ValueLogFileSize)
	}
	if dbCfg.GCPeriodInSeconds < 0 {
		return errors.NotValidf("db gc period %d", dbCfg.GCPeriodInSeconds)
	}

	if cfg.LogLevel < 0 || cfg.LogLevel > 3 {
		return errors.NotValidf("log level %d", cfg.LogLevel)
	}

	return nil
}

func (s *configurationService) GetConfiguration() Configuration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.config
}

func (s *configurationService) Path() string {
	return s.filename
}

// Update validates and writes updatedConfig back to the file.
// The file keeps the password, so it is written owner-only.
func (s *configurationService) Update(updatedConfig Configuration) error {
	if err := Validate(updatedConfig); err != nil {
		return errors.Trace(err)
	}

	data, err := yaml.Marshal(updatedConfig)
	if err != nil {
		return errors.Trace(err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.WriteFile(s.filename, data, 0600); err != nil {
		return errors.Annotatef(err, "writing %v", s.filename)
	}

	s.config = withClientID(updatedConfig)

	return nil
}
