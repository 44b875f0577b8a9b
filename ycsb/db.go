package ycsb

// Field is one named column of a row.
type Field struct {
	Name  string
	Value string
}

// Status 操作结果
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusNotFound
	StatusNotImplemented
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	}
	return "UNKNOWN"
}

// DB is a benchmark binding. A nil fields slice means every field.
type DB interface {
	Init() error
	Cleanup() error

	Read(table, key string, fields []string) ([]Field, Status)
	Scan(table, key string, count int, fields []string) ([][]Field, Status)
	Update(table, key string, values []Field) Status
	Insert(table, key string, values []Field) Status
	Delete(table, key string) Status
}
