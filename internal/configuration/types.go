package configuration

type MqttConfiguration struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Port      uint16 `mapstructure:"port" yaml:"port"`
	RootTopic string `mapstructure:"roottopic" yaml:"roottopic"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	ClientID  string `mapstructure:"clientid" yaml:"clientid,omitempty"`
}

type DBConfiguration struct {
	Directory         string `mapstructure:"directory" yaml:"directory"`
	InMemory          bool   `mapstructure:"inmemory" yaml:"inmemory"`
	ValueLogFileSize  int64  `mapstructure:"valuelogfilesize" yaml:"valuelogfilesize"`
	GCPeriodInSeconds int    `mapstructure:"gcperiodinseconds" yaml:"gcperiodinseconds"`
}

type Configuration struct {
	MqttConfiguration MqttConfiguration `mapstructure:"mqtt" yaml:"mqtt"`
	DBConfiguration   DBConfiguration   `mapstructure:"db" yaml:"db"`
	LogLevel          int               `mapstructure:"loglevel" yaml:"loglevel"` // info=0, warn=1, error=2, debug=3
}
