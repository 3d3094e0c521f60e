package record

const secretMask = "********"

// View is the JSON shape of a record for MQTT payloads and the CLI.
type View struct {
	Schema     SchemaVersion        `json:"schema"`
	Confirmed  bool                 `json:"confirmed"`
	BrokerPort *uint16              `json:"brokerPort,omitempty"`
	Fields     map[FieldName]string `json:"fields"`
}

// StateView masks secrets and is safe to publish for any record.
func (r *Record) StateView() View {
	v := r.view()
	for name, value := range v.Fields {
		if IsSecret(name) && value != "" {
			v.Fields[name] = secretMask
		}
	}

	return v
}

// ExportView carries every value and is only available once confirmed.
func (r *Record) ExportView() (View, error) {
	if err := r.RequireConfirmed(); err != nil {
		return View{}, err
	}

	return r.view(), nil
}

func (r *Record) view() View {
	v := View{
		Schema:    r.schema.Version,
		Confirmed: r.confirmed,
		Fields:    make(map[FieldName]string, len(r.text)),
	}
	for name, t := range r.text {
		v.Fields[name] = t.String()
	}
	if r.schema.Has(FieldBrokerPort) {
		port := r.brokerPort
		v.BrokerPort = &port
	}

	return v
}
