package logging

import "time"

// Field constructors for Neb's own domain.

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Component(name string) Field { return String("component", name) }
func Operation(op string) Field   { return String("operation", op) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Count(n int) Field           { return Int("count", n) }

// ChunkID names which slab chunk a log line concerns.
func ChunkID(id uint64) Field { return Uint64("chunk_id", id) }

// SegmentIndex names which segment within a chunk a log line concerns.
func SegmentIndex(i int) Field { return Int("segment_index", i) }

// SchemaID names which registered schema a log line concerns.
func SchemaID(id uint32) Field { return Uint64("schema_id", uint64(id)) }

// TxnID names which transaction a log line concerns.
func TxnID(id uint64) Field { return Uint64("txn_id", id) }

// StartTimer begins timing an operation for a later End*() call.
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{logger: logger, msg: msg, start: time.Now(), fields: fields}
}

// TimedOperation measures the duration between StartTimer and an End call.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}

// End logs the operation at Info level with its elapsed duration.
func (t *TimedOperation) End() {
	t.logger.Info(t.msg, append(t.fields, Latency(time.Since(t.start)))...)
}

// EndError logs the operation at Error level with its elapsed duration and err.
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, append(t.fields, Latency(time.Since(t.start)), Error(err))...)
}
