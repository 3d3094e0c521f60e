package record

import (
	"fmt"
	"strconv"
)

// Record is the configuration of one sensor node.
// A Record is not safe for concurrent mutation; hand it between goroutines
// or guard it, as the service layer does.
type Record struct {
	schema     Schema
	confirmed  bool
	text       map[FieldName]*Text
	brokerPort uint16
}

type WifiCredentials struct {
	Ssid string
	Pass string
}

type BrokerEndpoint struct {
	Address string
	Port    uint16
	Topic   string
}

type IoCredentials struct {
	User string
	Key  string
}

// New returns an unconfirmed record of the given schema with every field empty.
func New(version SchemaVersion) (*Record, error) {
	schema, err := GetSchema(version)
	if err != nil {
		return nil, err
	}

	r := &Record{
		schema: schema,
		text:   make(map[FieldName]*Text, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		if IsText(f) {
			t := NewText(schema.Bound)
			r.text[f] = &t
		}
	}

	return r, nil
}

func NewLatest() *Record {
	r, err := New(LatestSchema)
	if err != nil {
		panic(err)
	}

	return r
}

func (r *Record) Version() SchemaVersion {
	return r.schema.Version
}

func (r *Record) Fields() []FieldName {
	ret := make([]FieldName, len(r.schema.Fields))
	copy(ret, r.schema.Fields)

	return ret
}

// SetField assigns value to a field of the record schema.
// brokerPort takes a decimal value. Confirmation is left as it is.
func (r *Record) SetField(name FieldName, value string) error {
	if !r.schema.Has(name) {
		return fieldError(name, ErrInvalidFieldName, "not in schema %d", r.schema.Version)
	}

	if name == FieldBrokerPort {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fieldError(name, ErrInvalidFieldValue, "%q is not a port", value)
		}
		r.brokerPort = uint16(port)

		return nil
	}

	text := r.text[name]
	err := text.Set(value)
	if err == ErrFieldTooLong {
		return fieldError(name, err, "%d bytes, bound %d", len(value), text.Bound())
	}
	if err != nil {
		return fieldError(name, err, "contains NUL byte")
	}

	return nil
}

func (r *Record) GetField(name FieldName) (string, error) {
	if !r.schema.Has(name) {
		return "", fieldError(name, ErrInvalidFieldName, "not in schema %d", r.schema.Version)
	}

	if name == FieldBrokerPort {
		return strconv.FormatUint(uint64(r.brokerPort), 10), nil
	}

	return r.text[name].String(), nil
}

func (r *Record) SetBrokerPort(port uint16) error {
	if !r.schema.Has(FieldBrokerPort) {
		return fieldError(FieldBrokerPort, ErrInvalidFieldName, "not in schema %d", r.schema.Version)
	}
	r.brokerPort = port

	return nil
}

// BrokerPort returns the stored port, 0 when unset or absent from the schema.
func (r *Record) BrokerPort() uint16 {
	return r.brokerPort
}

// MarkConfirmed fails on schemas without a confirmation flag,
// since the flag could not be stored.
func (r *Record) MarkConfirmed() error {
	if !r.schema.HasConfirmation {
		return fieldError(FieldConfirmation, ErrInvalidFieldName, "not in schema %d", r.schema.Version)
	}
	r.confirmed = true

	return nil
}

func (r *Record) MarkUnconfirmed() {
	r.confirmed = false
}

func (r *Record) IsConfirmed() bool {
	return r.confirmed
}

// RequireConfirmed returns ErrUnconfirmedRecordUsed for records
// consumers must not act on yet.
func (r *Record) RequireConfirmed() error {
	if !r.confirmed {
		return ErrUnconfirmedRecordUsed
	}

	return nil
}

func (r *Record) Wifi() (WifiCredentials, error) {
	if err := r.RequireConfirmed(); err != nil {
		return WifiCredentials{}, err
	}

	return WifiCredentials{
		Ssid: r.text[FieldWifiSsid].String(),
		Pass: r.text[FieldWifiPass].String(),
	}, nil
}

// Broker returns where the node publishes. Schemas without a port,
// or a port left at zero, fall back to DefaultBrokerPort.
func (r *Record) Broker() (BrokerEndpoint, error) {
	if err := r.RequireConfirmed(); err != nil {
		return BrokerEndpoint{}, err
	}

	port := r.brokerPort
	if port == 0 {
		port = DefaultBrokerPort
	}

	return BrokerEndpoint{
		Address: r.text[FieldBroker].String(),
		Port:    port,
		Topic:   r.text[FieldTopicHumidity].String(),
	}, nil
}

func (r *Record) Io() (IoCredentials, error) {
	if err := r.RequireConfirmed(); err != nil {
		return IoCredentials{}, err
	}
	if !r.schema.Has(FieldIoUser) {
		return IoCredentials{}, fieldError(FieldIoUser, ErrInvalidFieldName, "not in schema %d", r.schema.Version)
	}

	return IoCredentials{
		User: r.text[FieldIoUser].String(),
		Key:  r.text[FieldIoKey].String(),
	}, nil
}

func (r *Record) Clone() *Record {
	ret := &Record{
		schema:     r.schema,
		confirmed:  r.confirmed,
		brokerPort: r.brokerPort,
		text:       make(map[FieldName]*Text, len(r.text)),
	}
	for name, t := range r.text {
		c := *t
		ret.text[name] = &c
	}

	return ret
}

// Upgrade returns a copy of the record in a newer schema.
// A field holding data that the target schema lacks fails the upgrade.
func (r *Record) Upgrade(version SchemaVersion) (*Record, error) {
	if version < r.schema.Version {
		return nil, fmt.Errorf("%w: %d to %d", ErrSchemaDowngrade, r.schema.Version, version)
	}

	ret, err := New(version)
	if err != nil {
		return nil, err
	}

	for _, f := range r.schema.Fields {
		value, _ := r.GetField(f)
		if !ret.schema.Has(f) {
			if (f == FieldBrokerPort && r.brokerPort != 0) || (f != FieldBrokerPort && value != "") {
				return nil, fieldError(f, ErrInvalidFieldName, "would be dropped by schema %d", version)
			}
			continue
		}
		if err := ret.SetField(f, value); err != nil {
			return nil, err
		}
	}

	if r.confirmed {
		if err := ret.MarkConfirmed(); err != nil {
			return nil, err
		}
	}

	return ret, nil
}
