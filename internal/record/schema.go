package record

import "sort"

type FieldName string

const (
	FieldBroker        FieldName = "broker"
	FieldBrokerPort    FieldName = "brokerPort"
	FieldTopicHumidity FieldName = "topicHumidity"
	FieldWifiSsid      FieldName = "wifiSsid"
	FieldWifiPass      FieldName = "wifiPass"
	FieldIoUser        FieldName = "ioUser"
	FieldIoKey         FieldName = "ioKey"

	// FieldConfirmation names the validity flag in error reports.
	FieldConfirmation FieldName = "confirmation"
)

type SchemaVersion uint8

const (
	SchemaV1 SchemaVersion = 1
	SchemaV2 SchemaVersion = 2
	SchemaV3 SchemaVersion = 3
	SchemaV4 SchemaVersion = 4

	LatestSchema = SchemaV4
)

const (
	ShortTextBound = 50
	LongTextBound  = 70

	DefaultBrokerPort uint16 = 1883
)

// Schema describes the field set and text bound of one record layout.
// Schemas only ever grow: a field never changes meaning between versions.
type Schema struct {
	Version         SchemaVersion
	Bound           int
	HasConfirmation bool
	Fields          []FieldName
}

var schemas = map[SchemaVersion]Schema{
	SchemaV1: {
		Version: SchemaV1,
		Bound:   ShortTextBound,
		Fields: []FieldName{
			FieldBroker, FieldBrokerPort, FieldTopicHumidity,
			FieldWifiSsid, FieldWifiPass, FieldIoUser, FieldIoKey,
		},
	},
	SchemaV2: {
		Version:         SchemaV2,
		Bound:           ShortTextBound,
		HasConfirmation: true,
		Fields: []FieldName{
			FieldBroker, FieldTopicHumidity,
			FieldWifiSsid, FieldWifiPass, FieldIoUser, FieldIoKey,
		},
	},
	SchemaV3: {
		Version:         SchemaV3,
		Bound:           LongTextBound,
		HasConfirmation: true,
		Fields: []FieldName{
			FieldBroker, FieldTopicHumidity, FieldWifiSsid, FieldWifiPass,
		},
	},
	SchemaV4: {
		Version:         SchemaV4,
		Bound:           LongTextBound,
		HasConfirmation: true,
		Fields: []FieldName{
			FieldBroker, FieldBrokerPort, FieldTopicHumidity,
			FieldWifiSsid, FieldWifiPass, FieldIoUser, FieldIoKey,
		},
	},
}

func GetSchema(version SchemaVersion) (Schema, error) {
	s, ok := schemas[version]
	if !ok {
		return Schema{}, ErrUnsupportedSchema
	}

	return s, nil
}

func Versions() []SchemaVersion {
	ret := make([]SchemaVersion, 0, len(schemas))
	for v := range schemas {
		ret = append(ret, v)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })

	return ret
}

func (s Schema) Has(field FieldName) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}

	return false
}

func IsSecret(field FieldName) bool {
	return field == FieldWifiPass || field == FieldIoKey
}

func IsText(field FieldName) bool {
	switch field {
	case FieldBroker, FieldTopicHumidity, FieldWifiSsid, FieldWifiPass, FieldIoUser, FieldIoKey:
		return true
	}

	return false
}
