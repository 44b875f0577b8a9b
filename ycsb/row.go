package ycsb

import (
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

var ErrMalformedRow = errors.New("ycsb: malformed row")

// SerializeRow lays the fields out as
//
//	nameLen(4) name valueLen(4) value
//
// repeated in order, little endian, with no terminator.
func SerializeRow(values []Field) []byte {
	size := 0
	for _, f := range values {
		size += 8 + len(f.Name) + len(f.Value)
	}
	data := make([]byte, 0, size)
	for _, f := range values {
		data = util.WriteWithUB4Length(data, []byte(f.Name))
		data = util.WriteWithUB4Length(data, []byte(f.Value))
	}
	return data
}

// DeserializeRow decodes every field of data.
func DeserializeRow(data []byte) ([]Field, error) {
	var values []Field
	cursor := 0
	for cursor < len(data) {
		var (
			f   Field
			err error
		)
		cursor, f, err = readField(data, cursor)
		if err != nil {
			return values, err
		}
		values = append(values, f)
	}
	return values, nil
}

// DeserializeRowFilter returns the fields named in fields, in that order.
//
// Matching is positional: the row is read left to right and a field is
// taken only when its name equals the next wanted name. A filter whose order
// differs from the row's misses fields; that, like a truncated row, is
// ErrMalformedRow.
func DeserializeRowFilter(data []byte, fields []string) ([]Field, error) {
	values := make([]Field, 0, len(fields))
	cursor, next := 0, 0
	for cursor < len(data) && next < len(fields) {
		var (
			f   Field
			err error
		)
		cursor, f, err = readField(data, cursor)
		if err != nil {
			return values, err
		}
		if f.Name == fields[next] {
			values = append(values, f)
			next++
		}
	}
	if len(values) != len(fields) {
		return values, errors.Wrapf(ErrMalformedRow, "found %d of %d requested fields", len(values), len(fields))
	}
	return values, nil
}

func readField(data []byte, cursor int) (int, Field, error) {
	var name, value []byte
	var err error
	if cursor, name, err = readChunk(data, cursor); err != nil {
		return cursor, Field{}, err
	}
	if cursor, value, err = readChunk(data, cursor); err != nil {
		return cursor, Field{}, err
	}
	return cursor, Field{Name: string(name), Value: string(value)}, nil
}

func readChunk(data []byte, cursor int) (int, []byte, error) {
	if cursor+4 > len(data) {
		return cursor, nil, errors.Wrapf(ErrMalformedRow, "length prefix at %d past end %d", cursor, len(data))
	}
	cursor, n := util.ReadUB4(data, cursor)
	if uint64(cursor)+uint64(n) > uint64(len(data)) {
		return cursor, nil, errors.Wrapf(ErrMalformedRow, "%d bytes at %d past end %d", n, cursor, len(data))
	}
	next, chunk := util.ReadBytes(data, cursor, int(n))
	return next, chunk, nil
}
