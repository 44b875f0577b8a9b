package ycsb

import (
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
)

var ErrMissingDBName = errors.New("btreedb: btree.dbname is missing")

// crudOps is the set of operations chosen once at Init.
type crudOps struct {
	read   func(table, key string, fields []string) ([]Field, Status)
	scan   func(table, key string, count int, fields []string) ([][]Field, Status)
	update func(table, key string, values []Field) Status
	insert func(table, key string, values []Field) Status
	delete func(table, key string) Status
}

// BTreeDB binds the benchmark to the shared B+tree table. Every BTreeDB in
// the process uses the same table; the last Cleanup closes it.
type BTreeDB struct {
	props      *conf.Cfg
	fieldCount int
	handle     *table.Handle
	ops        crudOps
}

func NewBTreeDB(props *conf.Cfg) *BTreeDB {
	if props == nil {
		props = conf.NewCfg()
	}
	return &BTreeDB{props: props}
}

func (db *BTreeDB) Init() error {
	if db.handle != nil {
		return nil
	}
	db.ops = crudOps{
		read:   db.readSingle,
		scan:   db.scanSingle,
		update: db.updateSingle,
		insert: db.insertSingle,
		delete: db.deleteSingle,
	}
	db.fieldCount = db.props.FieldCount

	path := db.props.BTreeDBName
	if path == "" {
		return ErrMissingDBName
	}
	handle, err := table.Open(table.Options{
		Path:        path,
		PoolSize:    uint64(db.props.BTreePoolSize),
		PageSize:    db.props.BTreePageSize,
		SyncOnFlush: db.props.BTreeSyncOnFlush,
	})
	if err != nil {
		return errors.Wrapf(err, "open btree table %s", path)
	}
	db.handle = handle
	return nil
}

func (db *BTreeDB) Cleanup() error {
	if db.handle == nil {
		return nil
	}
	err := db.handle.Close()
	db.handle = nil
	return err
}

func (db *BTreeDB) Read(table, key string, fields []string) ([]Field, Status) {
	return db.ops.read(table, key, fields)
}

func (db *BTreeDB) Scan(table, key string, count int, fields []string) ([][]Field, Status) {
	return db.ops.scan(table, key, count, fields)
}

func (db *BTreeDB) Update(table, key string, values []Field) Status {
	return db.ops.update(table, key, values)
}

func (db *BTreeDB) Insert(table, key string, values []Field) Status {
	return db.ops.insert(table, key, values)
}

func (db *BTreeDB) Delete(table, key string) Status {
	return db.ops.delete(table, key)
}

// decode turns a stored row into fields. A row that does not decode is a
// broken invariant, not a runtime condition, so it panics.
func (db *BTreeDB) decode(key string, data []byte, fields []string) []Field {
	if fields != nil {
		values, err := DeserializeRowFilter(data, fields)
		if err != nil {
			panic(errors.Wrapf(err, "row %q", key))
		}
		return values
	}
	values, err := DeserializeRow(data)
	if err != nil {
		panic(errors.Wrapf(err, "row %q", key))
	}
	if len(values) != db.fieldCount {
		panic(errors.Wrapf(ErrMalformedRow, "row %q has %d fields, fieldcount is %d", key, len(values), db.fieldCount))
	}
	return values
}

func (db *BTreeDB) readSingle(_, key string, fields []string) ([]Field, Status) {
	data, found, err := db.handle.Get([]byte(key))
	if err != nil {
		logger.Errorf("btreedb read %s: %v", key, err)
		return nil, StatusError
	}
	if !found {
		return nil, StatusNotFound
	}
	return db.decode(key, data, fields), StatusOK
}

func (db *BTreeDB) scanSingle(_, key string, count int, fields []string) ([][]Field, Status) {
	it, err := db.handle.Seek([]byte(key))
	if err != nil {
		logger.Errorf("btreedb scan %s: %v", key, err)
		return nil, StatusError
	}
	defer it.Close()

	result := make([][]Field, 0, count)
	for i := 0; i < count && !it.IsEnd(); i++ {
		result = append(result, db.decode(string(it.Key()), it.Value(), fields))
		if err := it.Next(); err != nil {
			logger.Errorf("btreedb scan %s: %v", key, err)
			return result, StatusError
		}
	}
	return result, StatusOK
}

func (db *BTreeDB) updateSingle(table, key string, values []Field) Status {
	return db.insertSingle(table, key, values)
}

func (db *BTreeDB) insertSingle(_, key string, values []Field) Status {
	if err := db.handle.Put([]byte(key), SerializeRow(values)); err != nil {
		logger.Errorf("btreedb insert %s: %v", key, err)
		return StatusError
	}
	return StatusOK
}

func (db *BTreeDB) deleteSingle(_, key string) Status {
	found, err := db.handle.Delete([]byte(key))
	if err != nil {
		logger.Errorf("btreedb delete %s: %v", key, err)
		return StatusError
	}
	if !found {
		return StatusNotFound
	}
	return StatusOK
}
