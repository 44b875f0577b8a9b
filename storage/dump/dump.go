package dump

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/golang/snappy"
	jerrors "github.com/juju/errors"
	"github.com/pierrec/lz4/v4"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/btree"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

// 文件格式:
//
//	"BTDUMP1" | compression(1) | stream
//
// stream, compressed as the header says:
//
//	{ keyLen(4) key valLen(4) val }* | 0(4) | count(8)
const magic = "BTDUMP1"

// maxKeyLen is the longest key any page size accepts.
var maxKeyLen = uint32(btree.MaxKeySize(pagestore.MaxPageSize))

// Compression 压缩方式
type Compression byte

const (
	CompressNone Compression = iota
	CompressSnappy
	CompressLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressSnappy:
		return "snappy"
	case CompressLZ4:
		return "lz4"
	}
	return "unknown"
}

// ParseCompression maps a config value to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return CompressSnappy, nil
	case "lz4":
		return CompressLZ4, nil
	case "none":
		return CompressNone, nil
	}
	return 0, jerrors.NotValidf("compression %q", name)
}

// Options 导出选项
type Options struct {
	Compression Compression
}

// Source is anything that can be scanned in key order.
type Source interface {
	Seek(key []byte) (*btree.Iterator, error)
}

// Sink receives imported records.
type Sink interface {
	Put(key, value []byte) error
}

// Export writes every record of src to w and returns how many it wrote.
func Export(w io.Writer, src Source, opts Options) (int, error) {
	header := append([]byte(magic), byte(opts.Compression))
	if _, err := w.Write(header); err != nil {
		return 0, jerrors.Annotate(err, "write dump header")
	}

	var (
		stream io.Writer
		closer io.Closer
	)
	switch opts.Compression {
	case CompressNone:
		bw := bufio.NewWriter(w)
		stream, closer = bw, flushCloser{bw}
	case CompressSnappy:
		sw := snappy.NewBufferedWriter(w)
		stream, closer = sw, sw
	case CompressLZ4:
		lw := lz4.NewWriter(w)
		stream, closer = lw, lw
	default:
		return 0, jerrors.NotValidf("compression %d", opts.Compression)
	}

	count, err := writeRecords(stream, src)
	if cerr := closer.Close(); err == nil && cerr != nil {
		err = jerrors.Annotate(cerr, "close dump stream")
	}
	if err != nil {
		return count, err
	}
	logger.Infof("dump: exported %d records (%s)", count, opts.Compression)
	return count, nil
}

func writeRecords(w io.Writer, src Source) (int, error) {
	it, err := src.Seek(nil)
	if err != nil {
		return 0, jerrors.Trace(err)
	}
	defer it.Close()

	count := 0
	buf := make([]byte, 0, 256)
	for ; !it.IsEnd(); count++ {
		buf = buf[:0]
		buf = util.WriteWithUB4Length(buf, it.Key())
		buf = util.WriteWithUB4Length(buf, it.Value())
		if _, err := w.Write(buf); err != nil {
			return count, jerrors.Annotatef(err, "write record %d", count)
		}
		if err := it.Next(); err != nil {
			return count, jerrors.Trace(err)
		}
	}
	if err := it.Err(); err != nil {
		return count, jerrors.Trace(err)
	}

	trailer := util.WriteUB4(nil, 0)
	trailer = util.WriteUB8(trailer, uint64(count))
	if _, err := w.Write(trailer); err != nil {
		return count, jerrors.Annotate(err, "write dump trailer")
	}
	return count, nil
}

// Import reads a dump produced by Export into dst and returns the number of
// records applied.
func Import(r io.Reader, dst Sink) (int, error) {
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, jerrors.Annotate(err, "read dump header")
	}
	if string(header[:len(magic)]) != magic {
		return 0, jerrors.NotValidf("dump header %q", header[:len(magic)])
	}

	var stream io.Reader
	c := Compression(header[len(magic)])
	switch c {
	case CompressNone:
		stream = bufio.NewReader(r)
	case CompressSnappy:
		stream = snappy.NewReader(r)
	case CompressLZ4:
		stream = lz4.NewReader(r)
	default:
		return 0, jerrors.NotValidf("compression %d", c)
	}

	count := 0
	word := make([]byte, 8)
	var value bytes.Buffer
	for {
		keyLen, err := readUB4(stream, word)
		if err != nil {
			return count, jerrors.Annotatef(err, "read record %d", count)
		}
		if keyLen == 0 {
			break
		}
		if keyLen > maxKeyLen {
			return count, jerrors.NotValidf("key of %d bytes in record %d", keyLen, count)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(stream, key); err != nil {
			return count, jerrors.Annotatef(err, "read key of record %d", count)
		}
		valLen, err := readUB4(stream, word)
		if err != nil {
			return count, jerrors.Annotatef(err, "read record %d", count)
		}
		// the buffer grows with the bytes actually present, not with valLen
		value.Reset()
		if n, err := io.CopyN(&value, stream, int64(valLen)); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return count, jerrors.Annotatef(err, "read value of record %d (%d of %d bytes)", count, n, valLen)
		}
		if err := dst.Put(key, value.Bytes()); err != nil {
			return count, jerrors.Annotatef(err, "put record %d", count)
		}
		count++
	}

	if _, err := io.ReadFull(stream, word); err != nil {
		return count, jerrors.Annotate(err, "read dump trailer")
	}
	if want := util.GetUB8(word, 0); want != uint64(count) {
		return count, jerrors.Errorf("dump holds %d records, trailer says %d", count, want)
	}
	logger.Infof("dump: imported %d records (%s)", count, c)
	return count, nil
}

func readUB4(r io.Reader, word []byte) (uint32, error) {
	if _, err := io.ReadFull(r, word[:4]); err != nil {
		return 0, err
	}
	return util.GetUB4(word, 0), nil
}

type flushCloser struct {
	w *bufio.Writer
}

func (f flushCloser) Close() error {
	return f.w.Flush()
}
