// Package feed renders analysis records pushed over a channel as an ordered,
// append-only table.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrNoObjects is returned when a results message carries no record.
var ErrNoObjects = errors.New("feed: message has no objects")

// Field is an optional record attribute. Absent and null decode to "".
// Numbers and booleans keep their JSON text, so 0 and false render as "0"
// and "false" rather than as empty cells; only absent and null are blank.
type Field string

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Field(s)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*f = Field(buf.String())
	}
	return nil
}

// Record is one analysis result. It arrives fully formed and is never
// mutated.
type Record struct {
	Name     Field `json:"name,omitempty"`
	MRP      Field `json:"mrp,omitempty"`
	Status   Field `json:"status,omitempty"`
	MfgDate  Field `json:"mfg_date,omitempty"`
	ExpDate  Field `json:"exp_date,omitempty"`
	Brand    Field `json:"brand,omitempty"`
	PackSize Field `json:"pack_size,omitempty"`
}

// Row is a rendered record with its sequence number.
type Row struct {
	Seq      int    `json:"seq"`
	Name     string `json:"name"`
	MRP      string `json:"mrp"`
	Status   string `json:"status"`
	MfgDate  string `json:"mfg_date"`
	ExpDate  string `json:"exp_date"`
	Brand    string `json:"brand"`
	PackSize string `json:"pack_size"`
}

// Columns are the table headings in cell order.
var Columns = []string{"S.No", "Name", "MRP", "Status", "Mfg Date", "Exp Date", "Brand", "Pack Size"}

// NewRow renders rec as row seq.
func NewRow(seq int, rec Record) Row {
	return Row{
		Seq:      seq,
		Name:     string(rec.Name),
		MRP:      string(rec.MRP),
		Status:   string(rec.Status),
		MfgDate:  string(rec.MfgDate),
		ExpDate:  string(rec.ExpDate),
		Brand:    string(rec.Brand),
		PackSize: string(rec.PackSize),
	}
}

// Cells returns the row in column order.
func (r Row) Cells() []string {
	return []string{
		strconv.Itoa(r.Seq),
		r.Name,
		r.MRP,
		r.Status,
		r.MfgDate,
		r.ExpDate,
		r.Brand,
		r.PackSize,
	}
}

// DecodeObjects decodes the objects payload of a results message. A single
// object yields one record; an array yields its records in order.
func DecodeObjects(raw json.RawMessage) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoObjects
	}

	if raw[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return []Record{rec}, nil
}
