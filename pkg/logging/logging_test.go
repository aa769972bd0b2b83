package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"DEBUG": DebugLevel, "debug": DebugLevel,
		"INFO": InfoLevel, "info": InfoLevel,
		"WARN": WarnLevel, "warning": WarnLevel,
		"ERROR": ErrorLevel, "error": ErrorLevel,
		"bogus": InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in))
	}
}

func TestJSONLoggerWritesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, InfoLevel)
	l.Info("wrote cell", ChunkID(3), Count(2))

	var e entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "wrote cell", e.Message)
	assert.EqualValues(t, 3, e.Fields["chunk_id"])
	assert.EqualValues(t, 2, e.Fields["count"])
}

func TestJSONLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, WarnLevel)
	l.Info("should not appear")
	l.Debug("should not appear either")
	assert.Equal(t, 0, buf.Len())
	l.Error("shows up", Error(errors.New("boom")))
	assert.Greater(t, buf.Len(), 0)
}

func TestWithMergesBoundFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, InfoLevel)
	child := l.With(Component("cleaner"))
	child.Info("tick")

	var e entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "cleaner", e.Fields["component"])
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	var n Logger = NopLogger{}
	n.Info("nothing happens")
	n.With(Component("x")).Error("still nothing")
}
