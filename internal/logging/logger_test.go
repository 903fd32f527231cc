package logging

import (
	"testing"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ reactor.Logger = (*Logger)(nil)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"Warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_SetLevel(t *testing.T) {
	l, err := New("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l.Level())
	l.SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, l.Level())
	assert.Equal(t, l.Level(), l.With("k", "v").Level())
}

func TestFromZap_WritesLeveledEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).With("reactor", "r1")

	l.Debugf("hidden %d", 1)
	l.Infof("tick %d", 2)
	l.Warnf("hot %.1f", 3.5)
	l.Errorf("boom")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "tick 2", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "hot 3.5", entries[1].Message)
	assert.Equal(t, "boom", entries[2].Message)
	assert.Equal(t, "r1", entries[2].ContextMap()["reactor"])
}
