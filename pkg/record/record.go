// pkg/record/record.go
package record

import (
	"encoding/binary"
	"errors"
	"math"

	"lunaris/pkg/types"
)

var (
	// ErrSchemaMismatch is returned when a row's column count or a value's
	// kind is incompatible with the schema it is being encoded against.
	ErrSchemaMismatch = errors.New("row does not match schema")

	// ErrValueTooLong is returned when a VARCHAR value exceeds its column's
	// declared maximum byte length.
	ErrValueTooLong = errors.New("value exceeds declared VARCHAR length")

	// ErrCorruptRow is returned when decoding leaves an unconsumed tail or
	// runs out of bytes before the schema is satisfied.
	ErrCorruptRow = errors.New("corrupt row encoding")
)

func nullBitmapLen(ncols int) int {
	return (ncols + 7) / 8
}

// Encode serializes row against schema using the fixed layout from spec §3:
// a null bitmap followed by fixed-size payloads for non-null columns in
// column order.
func Encode(schema *types.Schema, row types.Row) ([]byte, error) {
	if len(row) != len(schema.Columns) {
		return nil, ErrSchemaMismatch
	}

	bitmapLen := nullBitmapLen(len(schema.Columns))
	bitmap := make([]byte, bitmapLen)
	payload := make([]byte, 0, 32)

	for i, col := range schema.Columns {
		v := row[i]
		if v.IsNull() {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}

		switch col.Type {
		case types.ColInteger:
			if v.Kind() != types.KindInteger {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.Integer()))
			payload = append(payload, b[:]...)

		case types.ColFloat:
			if v.Kind() != types.KindFloat {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Float()))
			payload = append(payload, b[:]...)

		case types.ColBoolean:
			if v.Kind() != types.KindBoolean {
				return nil, ErrSchemaMismatch
			}
			if v.Boolean() {
				payload = append(payload, 1)
			} else {
				payload = append(payload, 0)
			}

		case types.ColVarchar:
			if v.Kind() != types.KindText {
				return nil, ErrSchemaMismatch
			}
			text := v.Text()
			if len(text) > col.VarcharN {
				return nil, ErrValueTooLong
			}
			var lb [2]byte
			binary.LittleEndian.PutUint16(lb[:], uint16(len(text)))
			payload = append(payload, lb[:]...)
			payload = append(payload, text...)

		default:
			return nil, ErrSchemaMismatch
		}
	}

	out := make([]byte, 0, bitmapLen+len(payload))
	out = append(out, bitmap...)
	out = append(out, payload...)
	return out, nil
}

// Decode is the inverse of Encode; an unconsumed tail is ErrCorruptRow.
func Decode(schema *types.Schema, data []byte) (types.Row, error) {
	bitmapLen := nullBitmapLen(len(schema.Columns))
	if len(data) < bitmapLen {
		return nil, ErrCorruptRow
	}
	bitmap := data[:bitmapLen]
	pos := bitmapLen

	row := make(types.Row, len(schema.Columns))
	for i, col := range schema.Columns {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			row[i] = types.NewNull()
			continue
		}

		switch col.Type {
		case types.ColInteger:
			if pos+8 > len(data) {
				return nil, ErrCorruptRow
			}
			row[i] = types.NewInteger(int64(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8

		case types.ColFloat:
			if pos+8 > len(data) {
				return nil, ErrCorruptRow
			}
			row[i] = types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8

		case types.ColBoolean:
			if pos+1 > len(data) {
				return nil, ErrCorruptRow
			}
			row[i] = types.NewBoolean(data[pos] != 0)
			pos++

		case types.ColVarchar:
			if pos+2 > len(data) {
				return nil, ErrCorruptRow
			}
			l := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
			pos += 2
			if pos+l > len(data) {
				return nil, ErrCorruptRow
			}
			row[i] = types.NewText(string(data[pos : pos+l]))
			pos += l

		default:
			return nil, ErrCorruptRow
		}
	}

	if pos != len(data) {
		return nil, ErrCorruptRow
	}
	return row, nil
}
