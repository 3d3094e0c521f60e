package provisioning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/supby/nodeconf/internal/record"
	"github.com/supby/nodeconf/internal/service"
)

// File is a provisioning batch, e.g.
//
//	devices:
//	  - id: bedroom
//	    confirmed: true
//	    brokerPort: 1883
//	    fields:
//	      broker: mqtt.example.com
//	      topicHumidity: home/bedroom/humidity
type File struct {
	Devices []Device `yaml:"devices"`
}

type Device struct {
	ID         string            `yaml:"id"`
	Confirmed  bool              `yaml:"confirmed"`
	BrokerPort *uint16           `yaml:"brokerPort,omitempty"`
	Fields     map[string]string `yaml:"fields"`
}

func LoadFile(filename string) ([]service.Provision, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

func Parse(data []byte) ([]service.Provision, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Devices))
	ret := make([]service.Provision, 0, len(f.Devices))
	for i, d := range f.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device %d: missing id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("device %v listed twice", d.ID)
		}
		seen[d.ID] = true

		p := service.Provision{
			DeviceID:   d.ID,
			Fields:     make(map[record.FieldName]string, len(d.Fields)),
			BrokerPort: d.BrokerPort,
			Confirmed:  d.Confirmed,
		}
		for name, value := range d.Fields {
			p.Fields[record.FieldName(name)] = value
		}

		ret = append(ret, p)
	}

	return ret, nil
}
