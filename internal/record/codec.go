package record

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire format messages so that fields can be
// added without breaking readers. Field numbers are never reused.
const (
	wireVersion   protowire.Number = 1
	wireConfirmed protowire.Number = 2
)

var wireFields = map[FieldName]protowire.Number{
	FieldBroker:        3,
	FieldBrokerPort:    4,
	FieldTopicHumidity: 5,
	FieldWifiSsid:      6,
	FieldWifiPass:      7,
	FieldIoUser:        8,
	FieldIoKey:         9,
}

var wireFieldNames = func() map[protowire.Number]FieldName {
	ret := make(map[protowire.Number]FieldName, len(wireFields))
	for name, num := range wireFields {
		ret[num] = name
	}
	return ret
}()

func Marshal(r *Record) []byte {
	b := protowire.AppendTag(nil, wireVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.schema.Version))

	if r.schema.HasConfirmation {
		b = protowire.AppendTag(b, wireConfirmed, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.confirmed))
	}

	for _, f := range r.schema.Fields {
		num := wireFields[f]
		if f == FieldBrokerPort {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(r.brokerPort))
			continue
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, r.text[f].String())
	}

	return b
}

// Unmarshal decodes a record in the schema it was written with.
// Unknown field numbers are skipped.
func Unmarshal(b []byte) (*Record, error) {
	version, err := readVersion(b)
	if err != nil {
		return nil, err
	}

	r, err := New(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", err, version)
	}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case wireVersion:
			n = protowire.ConsumeFieldValue(num, typ, b)
		case wireConfirmed:
			var v uint64
			if typ != protowire.VarintType {
				return nil, malformed(fmt.Errorf("confirmation has wire type %d", typ))
			}
			v, n = protowire.ConsumeVarint(b)
			// schemas without the flag always load unconfirmed
			if n >= 0 && protowire.DecodeBool(v) && r.schema.HasConfirmation {
				r.confirmed = true
			}
		default:
			n, err = r.consumeField(num, typ, b)
			if err != nil {
				return nil, err
			}
		}

		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}

	return r, nil
}

func (r *Record) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	name, known := wireFieldNames[num]
	if !known {
		return protowire.ConsumeFieldValue(num, typ, b), nil
	}

	if name == FieldBrokerPort {
		if typ != protowire.VarintType {
			return 0, malformed(fmt.Errorf("%v has wire type %d", name, typ))
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}
		if v > math.MaxUint16 {
			return 0, fieldError(name, ErrInvalidFieldValue, "%d out of range", v)
		}
		return n, r.SetBrokerPort(uint16(v))
	}

	if typ != protowire.BytesType {
		return 0, malformed(fmt.Errorf("%v has wire type %d", name, typ))
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return n, nil
	}

	return n, r.SetField(name, v)
}

func readVersion(b []byte) (SchemaVersion, error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if num == wireVersion && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, malformed(protowire.ParseError(n))
			}
			if v == 0 || v > math.MaxUint8 {
				return 0, fmt.Errorf("%w: %d", ErrUnsupportedSchema, v)
			}
			return SchemaVersion(v), nil
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}

	return 0, malformed(fmt.Errorf("no schema version"))
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
}
