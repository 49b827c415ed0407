package main

import (
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
)

// payloadView is the JSON rendering of a decoded payload. Absent optional
// fields are omitted.
type payloadView struct {
	Timestamp *uint64      `json:"timestamp,omitempty"`
	Seq       *uint64      `json:"seq,omitempty"`
	UUID      string       `json:"uuid,omitempty"`
	Body      []byte       `json:"body,omitempty"`
	Metrics   []metricView `json:"metrics"`
	Error     string       `json:"error,omitempty"`
}

type metricView struct {
	Name       string      `json:"name,omitempty"`
	Alias      *uint64     `json:"alias,omitempty"`
	Timestamp  *uint64     `json:"timestamp,omitempty"`
	Datatype   string      `json:"datatype,omitempty"`
	Historical *bool       `json:"is_historical,omitempty"`
	Transient  *bool       `json:"is_transient,omitempty"`
	Null       *bool       `json:"is_null,omitempty"`
	Value      interface{} `json:"value,omitempty"`
}

type dataSetView struct {
	Columns []string  `json:"columns"`
	Rows    [][]int32 `json:"rows"`
}

func viewPayload(p *sparkplug.Payload, decodeErr error) payloadView {
	v := payloadView{Metrics: make([]metricView, 0, p.Len())}
	if p.HasTimestamp {
		ts := p.Timestamp
		v.Timestamp = &ts
	}
	if p.HasSeq {
		seq := p.Seq
		v.Seq = &seq
	}
	if p.HasUUID {
		v.UUID = p.UUID.String()
	}
	if p.HasBody {
		v.Body = append([]byte(nil), p.Body.Bytes()...)
	}
	for i := 0; i < p.Len(); i++ {
		v.Metrics = append(v.Metrics, viewMetric(p.Metric(i)))
	}
	if decodeErr != nil {
		v.Error = decodeErr.Error()
	}
	return v
}

func viewMetric(m *sparkplug.Metric) metricView {
	var v metricView
	if m.HasName {
		v.Name = m.Name.String()
	}
	if m.HasAlias {
		a := m.Alias
		v.Alias = &a
	}
	if m.HasTimestamp {
		ts := m.Timestamp
		v.Timestamp = &ts
	}
	if m.HasDatatype {
		v.Datatype = m.Datatype.String()
	}
	if m.HasIsHistorical {
		b := m.IsHistorical
		v.Historical = &b
	}
	if m.HasIsTransient {
		b := m.IsTransient
		v.Transient = &b
	}
	if m.HasIsNull {
		b := m.IsNull
		v.Null = &b
	}
	switch m.Value.Kind() {
	case sparkplug.ValueAbsent:
	case sparkplug.ValueDataSet:
		if ds := m.Value.DataSet(); ds != nil {
			v.Value = dataSetView{Columns: ds.Columns, Rows: ds.Rows}
		}
	default:
		v.Value = m.Value.Interface()
	}
	return v
}
