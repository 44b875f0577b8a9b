package ycsb

import "time"

// DBWrapper times every call of the wrapped binding and reports it.
type DBWrapper struct {
	db           DB
	measurements Measurements
}

func NewDBWrapper(db DB, measurements Measurements) *DBWrapper {
	return &DBWrapper{db: db, measurements: measurements}
}

func (w *DBWrapper) Init() error {
	return w.db.Init()
}

func (w *DBWrapper) Cleanup() error {
	return w.db.Cleanup()
}

func (w *DBWrapper) Read(table, key string, fields []string) ([]Field, Status) {
	start := time.Now()
	result, s := w.db.Read(table, key, fields)
	w.measurements.Report(OpRead, time.Since(start))
	return result, s
}

func (w *DBWrapper) Scan(table, key string, count int, fields []string) ([][]Field, Status) {
	start := time.Now()
	result, s := w.db.Scan(table, key, count, fields)
	w.measurements.Report(OpScan, time.Since(start))
	return result, s
}

func (w *DBWrapper) Update(table, key string, values []Field) Status {
	start := time.Now()
	s := w.db.Update(table, key, values)
	w.measurements.Report(OpUpdate, time.Since(start))
	return s
}

func (w *DBWrapper) Insert(table, key string, values []Field) Status {
	start := time.Now()
	s := w.db.Insert(table, key, values)
	w.measurements.Report(OpInsert, time.Since(start))
	return s
}

func (w *DBWrapper) Delete(table, key string) Status {
	start := time.Now()
	s := w.db.Delete(table, key)
	w.measurements.Report(OpDelete, time.Since(start))
	return s
}

// ReadModifyWrite reads key and writes values back, reported as one
// READMODIFYWRITE besides the READ and UPDATE it is made of.
func (w *DBWrapper) ReadModifyWrite(table, key string, fields []string, values []Field) Status {
	start := time.Now()
	_, s := w.Read(table, key, fields)
	if s == StatusOK {
		s = w.Update(table, key, values)
	}
	w.measurements.Report(OpReadModifyWrite, time.Since(start))
	return s
}
