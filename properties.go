package zonalstats

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"
)

// column is one entry of an inferred property schema.
type column struct {
	name string
	typ  flattypes.ColumnType
}

// inferSchema derives a column schema from feature properties. Columns
// appear in first-seen order, names within one feature sorted, so the
// schema is stable across runs.
func inferSchema(props []geojson.Properties) []column {
	index := make(map[string]int)
	var cols []column
	for _, p := range props {
		names := make([]string, 0, len(p))
		for name := range p {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := p[name]
			i, ok := index[name]
			if !ok {
				index[name] = len(cols)
				cols = append(cols, column{name: name, typ: inferColumnType(value)})
				continue
			}
			if value != nil {
				cols[i].typ = promoteColumnType(cols[i].typ, inferColumnType(value))
			}
		}
	}
	return cols
}

// writerColumns builds the FlatGeobuf column table for a schema.
func writerColumns(schema []column, builder *flatbuffers.Builder) []*writer.Column {
	out := make([]*writer.Column, 0, len(schema))
	for _, c := range schema {
		col := writer.NewColumn(builder)
		col.SetName(c.name)
		col.SetTitle(c.name) // Set title to match name for JS library compatibility
		col.SetType(c.typ)
		col.SetNullable(true)
		out = append(out, col)
	}
	return out
}

// inferColumnType determines the FlatGeobuf column type for a Go value.
func inferColumnType(value interface{}) flattypes.ColumnType {
	switch v := value.(type) {
	case nil:
		return flattypes.ColumnTypeDouble
	case bool:
		return flattypes.ColumnTypeBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return flattypes.ColumnTypeInt
		}
		return flattypes.ColumnTypeLong
	case int8, int16, int32:
		return flattypes.ColumnTypeInt
	case int64:
		return flattypes.ColumnTypeLong
	case uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeUInt
	case uint64:
		return flattypes.ColumnTypeULong
	case float32:
		return flattypes.ColumnTypeFloat
	case float64, *float64:
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	default:
		return flattypes.ColumnTypeJson
	}
}

var numericRank = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   0,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  2,
	flattypes.ColumnTypeShort:  3,
	flattypes.ColumnTypeUShort: 4,
	flattypes.ColumnTypeInt:    5,
	flattypes.ColumnTypeUInt:   6,
	flattypes.ColumnTypeLong:   7,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  9,
	flattypes.ColumnTypeDouble: 10,
}

// promoteColumnType returns the more general type when there's a conflict.
func promoteColumnType(a, b flattypes.ColumnType) flattypes.ColumnType {
	switch {
	case a == b:
		return a
	case a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson:
		return flattypes.ColumnTypeJson
	case a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString:
		return flattypes.ColumnTypeString
	}

	rankA, okA := numericRank[a]
	rankB, okB := numericRank[b]
	if okA && okB {
		if rankA > rankB {
			return a
		}
		return b
	}
	return flattypes.ColumnTypeJson
}

// encodeProperties encodes properties in FlatGeobuf binary form:
// [uint16 column index][value] per non-null property, in schema order.
func encodeProperties(props geojson.Properties, schema []column) []byte {
	var buf bytes.Buffer
	for i, c := range schema {
		value, ok := props[c.name]
		if !ok || value == nil {
			continue
		}
		if p, isPtr := value.(*float64); isPtr {
			if p == nil {
				continue
			}
			value = *p
		}
		var tmp [8]byte
		binary.LittleEndian.PutUint16(tmp[:2], uint16(i))
		buf.Write(tmp[:2])
		writePropertyValue(&buf, value, c.typ)
	}
	return buf.Bytes()
}

// writePropertyValue writes value encoded as column type typ.
func writePropertyValue(buf *bytes.Buffer, value interface{}, typ flattypes.ColumnType) {
	le := binary.LittleEndian
	var tmp [8]byte
	switch typ {
	case flattypes.ColumnTypeBool:
		b, _ := value.(bool)
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		v, _ := toInt64(value)
		buf.WriteByte(byte(v))
	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		v, _ := toInt64(value)
		le.PutUint16(tmp[:2], uint16(v))
		buf.Write(tmp[:2])
	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		v, _ := toInt64(value)
		le.PutUint32(tmp[:4], uint32(v))
		buf.Write(tmp[:4])
	case flattypes.ColumnTypeLong:
		v, _ := toInt64(value)
		le.PutUint64(tmp[:], uint64(v))
		buf.Write(tmp[:])
	case flattypes.ColumnTypeULong:
		v, _ := toUint64(value)
		le.PutUint64(tmp[:], v)
		buf.Write(tmp[:])
	case flattypes.ColumnTypeFloat:
		v, _ := toFloat64(value)
		le.PutUint32(tmp[:4], math.Float32bits(float32(v)))
		buf.Write(tmp[:4])
	case flattypes.ColumnTypeDouble:
		v, _ := toFloat64(value)
		le.PutUint64(tmp[:], math.Float64bits(v))
		buf.Write(tmp[:])
	case flattypes.ColumnTypeJson:
		data, err := json.Marshal(value)
		if err != nil {
			data = []byte("null")
		}
		le.PutUint32(tmp[:4], uint32(len(data)))
		buf.Write(tmp[:4])
		buf.Write(data)
	case flattypes.ColumnTypeBinary:
		data, _ := value.([]byte)
		le.PutUint32(tmp[:4], uint32(len(data)))
		buf.Write(tmp[:4])
		buf.Write(data)
	default: // String, DateTime
		s := toString(value)
		le.PutUint32(tmp[:4], uint32(len(s)))
		buf.Write(tmp[:4])
		buf.WriteString(s)
	}
}

// decodeProperties decodes FlatGeobuf binary properties to geojson.Properties.
func decodeProperties(data []byte, header *flattypes.Header) geojson.Properties {
	if len(data) == 0 || header == nil {
		return nil
	}

	props := make(geojson.Properties)
	for offset := 0; offset+2 <= len(data); {
		colIndex := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2

		var col flattypes.Column
		if colIndex >= header.ColumnsLength() || !header.Columns(&col, colIndex) {
			break
		}
		value, n := readPropertyValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}
	return props
}

// readPropertyValue reads one value of type typ and returns it with the
// number of bytes consumed, or 0 when data is too short.
func readPropertyValue(data []byte, typ flattypes.ColumnType) (interface{}, int) {
	le := binary.LittleEndian
	fixed := map[flattypes.ColumnType]int{
		flattypes.ColumnTypeBool: 1, flattypes.ColumnTypeByte: 1, flattypes.ColumnTypeUByte: 1,
		flattypes.ColumnTypeShort: 2, flattypes.ColumnTypeUShort: 2,
		flattypes.ColumnTypeInt: 4, flattypes.ColumnTypeUInt: 4, flattypes.ColumnTypeFloat: 4,
		flattypes.ColumnTypeLong: 8, flattypes.ColumnTypeULong: 8, flattypes.ColumnTypeDouble: 8,
	}
	if size, ok := fixed[typ]; ok {
		if len(data) < size {
			return nil, 0
		}
		switch typ {
		case flattypes.ColumnTypeBool:
			return data[0] != 0, 1
		case flattypes.ColumnTypeByte:
			return int8(data[0]), 1
		case flattypes.ColumnTypeUByte:
			return data[0], 1
		case flattypes.ColumnTypeShort:
			return int16(le.Uint16(data)), 2
		case flattypes.ColumnTypeUShort:
			return le.Uint16(data), 2
		case flattypes.ColumnTypeInt:
			return int32(le.Uint32(data)), 4
		case flattypes.ColumnTypeUInt:
			return le.Uint32(data), 4
		case flattypes.ColumnTypeFloat:
			return math.Float32frombits(le.Uint32(data)), 4
		case flattypes.ColumnTypeLong:
			return int64(le.Uint64(data)), 8
		case flattypes.ColumnTypeULong:
			return le.Uint64(data), 8
		default:
			return math.Float64frombits(le.Uint64(data)), 8
		}
	}

	// variable length values carry a uint32 byte length
	if len(data) < 4 {
		return nil, 0
	}
	n := int(le.Uint32(data))
	if len(data) < 4+n {
		return nil, 0
	}
	raw := data[4 : 4+n]
	switch typ {
	case flattypes.ColumnTypeJson:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw), 4 + n
		}
		return v, 4 + n
	case flattypes.ColumnTypeBinary:
		return append([]byte(nil), raw...), 4 + n
	default:
		return string(raw), 4 + n
	}
}

// Type conversion helpers

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toUint64(v interface{}) (uint64, bool) {
	if u, ok := v.(uint64); ok {
		return u, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return 0, false
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
