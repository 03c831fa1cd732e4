package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Check it satisfies the interfaces
var (
	_ pflag.Value  = (*LogLevel)(nil)
	_ fmt.Stringer = LogValueItem{}
)

type withString struct{}

func (withString) String() string {
	return "hello"
}

func TestLogValue(t *testing.T) {
	x := LogValue("x", 1)
	assert.Equal(t, "1", x.String())
	x = LogValue("x", withString{})
	assert.Equal(t, "hello", x.String())
	x = LogValueHide("x", withString{})
	assert.Equal(t, "", x.String())
}

func TestLogLevelString(t *testing.T) {
	for _, test := range []struct {
		in   LogLevel
		want string
	}{
		{LogLevelEmergency, "EMERGENCY"},
		{LogLevelNotice, "NOTICE"},
		{LogLevelDebug, "DEBUG"},
		{99, "Unknown(99)"},
	} {
		logLevel := test.in
		got := logLevel.String()
		assert.Equal(t, test.want, got, test.in)
	}
}

func TestLogLevelSet(t *testing.T) {
	for _, test := range []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"EMERGENCY", LogLevelEmergency, false},
		{"DEBUG", LogLevelDebug, false},
		{"info", LogLevelInfo, false},
		{"Potato", 100, true},
		{"", 100, true},
	} {
		logLevel := LogLevel(100)
		err := logLevel.Set(test.in)
		if test.err {
			require.Error(t, err, test.in)
		} else {
			require.NoError(t, err, test.in)
		}
		assert.Equal(t, test.want, logLevel, test.in)
	}
}

// captureLog runs f with the global config replaced by ci and returns
// what was logged.
func captureLog(t *testing.T, ci ConfigInfo, f func()) string {
	var buf bytes.Buffer
	old := *globalConfig
	*globalConfig = ci
	InitLogging(globalConfig, &buf)
	defer func() {
		*globalConfig = old
		InitLogging(globalConfig, nil)
	}()
	f()
	return buf.String()
}

func TestLogLevelFiltering(t *testing.T) {
	out := captureLog(t, ConfigInfo{LogLevel: LogLevelNotice}, func() {
		Debugf(nil, "debug %d", 1)
		Infof(nil, "info %d", 2)
		Logf(nil, "notice %d", 3)
		Errorf("obj", "error %d", 4)
	})
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "NOTICE: notice 3\n")
	assert.Contains(t, out, "ERROR : obj: error 4\n")

	out = captureLog(t, ConfigInfo{LogLevel: LogLevelDebug}, func() {
		Debugf(nil, "debug %d", 1)
		Infof("/a.txt", "info %d", 2)
	})
	assert.Contains(t, out, "DEBUG : debug 1\n")
	assert.Contains(t, out, "INFO  : /a.txt: info 2\n")
}

func TestLogJSON(t *testing.T) {
	out := captureLog(t, ConfigInfo{LogLevel: LogLevelNotice, UseJSONLog: true}, func() {
		Logf("server", "Serving on %s%v", "http://127.0.0.1:8000/", LogValueHide("url", "http://127.0.0.1:8000/"))
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Serving on http://127.0.0.1:8000/", entry["msg"])
	assert.Equal(t, "NOTICE", entry["severity"])
	assert.Equal(t, "server", entry["object"])
	assert.Equal(t, "string", entry["objectType"])
	assert.Equal(t, "http://127.0.0.1:8000/", entry["url"])
}
