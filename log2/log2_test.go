package log2

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		level Level
		fun   func(l *Log) string
	}{
		{"caller/debug", LDebug, func(l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("low level var=%d", 42)
			return callerPrevLine() + "debug: low level var=42\n"
		}},
		{"caller/info", LInfo, func(l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("regular state=%s", "ok")
			return callerPrevLine() + "regular state=ok\n"
		}},
		{"warning", LWarning, func(l *Log) string {
			l.Warningf("0: no name key")
			return "warning: 0: no name key\n"
		}},
		{"error", LError, func(l *Log) string {
			l.Error(fmt.Errorf("one particular issue"))
			return "error: one particular issue\n"
		}},
		{"filter/debug", LInfo, func(l *Log) string {
			l.Debugf("invisible")
			l.Debug("invisible")
			return ""
		}},
		{"filter/warning", LError, func(l *Log) string {
			l.Warning("invisible")
			l.Infof("invisible")
			return ""
		}},
		{"prefix", LInfo, func(l *Log) string {
			l.SetPrefix("nt: ")
			l.Info("connected")
			return "nt: connected\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := NewWriter(&buf, c.level)
			l.SetFlags(0)
			expect := c.fun(l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestNil(t *testing.T) {
	t.Parallel()
	var l *Log
	assert.False(t, l.Enabled(LError))
	assert.Nil(t, l.Clone(LDebug))
	assert.Equal(t, LError, l.Level())
	l.SetLevel(LDebug)
	l.SetPrefix("x")
	l.SetFlags(0)
	l.Errorf("ignored %d", 1)
	l.Warning("ignored")
	l.Debug("ignored")
	assert.Nil(t, NewWriter(io.Discard, LAll))
}

func TestClone(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, LError)
	l.SetFlags(0)
	l.SetPrefix("client: ")
	c := l.Clone(LDebug)
	c.Debugf("tick")
	l.Debugf("hidden")
	assert.Equal(t, "client: debug: tick\n", buf.String())
	assert.Equal(t, LDebug, c.Level())
	assert.Equal(t, LError, l.Level())
}

func TestLevelString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "warning", LWarning.String())
	assert.Equal(t, "level(7)", Level(7).String())
}

// Lshortfile header of the line just above the caller.
func callerPrevLine() string {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d: ", file, line-1)
}
