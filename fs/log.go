package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogLevel describes corsserve's logs.  These are a subset of the syslog log levels.
type LogLevel byte

// Log levels.  These are the syslog levels of which we only use a
// subset.
//
//    LOG_EMERG      system is unusable
//    LOG_ALERT      action must be taken immediately
//    LOG_CRIT       critical conditions
//    LOG_ERR        error conditions
//    LOG_WARNING    warning conditions
//    LOG_NOTICE     normal, but significant, condition
//    LOG_INFO       informational message
//    LOG_DEBUG      debug-level message
const (
	LogLevelEmergency LogLevel = iota
	LogLevelAlert
	LogLevelCritical
	LogLevelError // Error - can't be suppressed
	LogLevelWarning
	LogLevelNotice // Normal logging, -q suppresses
	LogLevelInfo   // Access log, needs -v
	LogLevelDebug  // Debug level, needs -vv
)

var logLevelToString = []string{
	LogLevelEmergency: "EMERGENCY",
	LogLevelAlert:     "ALERT",
	LogLevelCritical:  "CRITICAL",
	LogLevelError:     "ERROR",
	LogLevelWarning:   "WARNING",
	LogLevelNotice:    "NOTICE",
	LogLevelInfo:      "INFO",
	LogLevelDebug:     "DEBUG",
}

// String turns a LogLevel into a string
func (l LogLevel) String() string {
	if l >= LogLevel(len(logLevelToString)) {
		return fmt.Sprintf("Unknown(%d)", l)
	}
	return logLevelToString[l]
}

// Set a LogLevel
func (l *LogLevel) Set(s string) error {
	s = strings.ToUpper(s)
	for n, name := range logLevelToString {
		if s != "" && name == s {
			*l = LogLevel(n)
			return nil
		}
	}
	return errors.Errorf("unknown log level %q", s)
}

// Type of the value
func (l *LogLevel) Type() string {
	return "string"
}

// logrusLevel maps a LogLevel onto the nearest logrus level.
//
// Levels more severe than ERROR still map to ERROR as logrus exits or
// panics on its own Fatal and Panic levels.
func (l LogLevel) logrusLevel() logrus.Level {
	switch {
	case l <= LogLevelError:
		return logrus.ErrorLevel
	case l == LogLevelWarning:
		return logrus.WarnLevel
	case l == LogLevelDebug:
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// severityKey is the field holding the LogLevel name in each entry
const severityKey = "severity"

// textFormatter writes entries as
//
//    2006/01/02 15:04:05 NOTICE: object: message
type textFormatter struct{}

// Format implements logrus.Formatter
func (textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	severity, ok := entry.Data[severityKey].(string)
	if !ok {
		severity = strings.ToUpper(entry.Level.String())
	}
	var b bytes.Buffer
	b.WriteString(entry.Time.Format("2006/01/02 15:04:05 "))
	_, _ = fmt.Fprintf(&b, "%-6s: %s\n", severity, entry.Message)
	return b.Bytes(), nil
}

// InitLogging configures the logrus standard logger from ci
//
// It should be called once the command line flags have been parsed.
func InitLogging(ci *ConfigInfo, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)
	logrus.SetLevel(logrus.DebugLevel)
	if ci.UseJSONLog {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(textFormatter{})
	}
}

// LogValueItem describes keyed item for a JSON log entry
type LogValueItem struct {
	key    string
	value  interface{}
	render bool
}

// LogValue should be used as an argument to any logging calls to
// augment the JSON output with more structured information.
//
// key is the dictionary parameter used to store value.
func LogValue(key string, value interface{}) LogValueItem {
	return LogValueItem{key: key, value: value, render: true}
}

// LogValueHide should be used as an argument to any logging calls to
// augment the JSON output with more structured information.
//
// String() will return a blank string - this is useful to put items
// in which don't print into the log.
func LogValueHide(key string, value interface{}) LogValueItem {
	return LogValueItem{key: key, value: value, render: false}
}

// String returns the representation of value. If render is false this
// is an empty string so LogValueItem entries won't show in the
// textual representation of logs.
func (j LogValueItem) String() string {
	if !j.render {
		return ""
	}
	if do, ok := j.value.(fmt.Stringer); ok {
		return do.String()
	}
	return fmt.Sprint(j.value)
}

// LogPrintf produces a log string from the arguments passed in
func LogPrintf(level LogLevel, o interface{}, text string, args ...interface{}) {
	out := fmt.Sprintf(text, args...)
	fields := logrus.Fields{
		severityKey: level.String(),
	}
	if GetConfig(context.TODO()).UseJSONLog {
		if o != nil {
			fields["object"] = fmt.Sprintf("%+v", o)
			fields["objectType"] = fmt.Sprintf("%T", o)
		}
		for _, arg := range args {
			if item, ok := arg.(LogValueItem); ok {
				fields[item.key] = item.value
			}
		}
	} else if o != nil {
		out = fmt.Sprintf("%v: %s", o, out)
	}
	logrus.WithFields(fields).Log(level.logrusLevel(), out)
}

// LogLevelPrintf writes logs at the given level
func LogLevelPrintf(level LogLevel, o interface{}, text string, args ...interface{}) {
	if GetConfig(context.TODO()).LogLevel >= level {
		LogPrintf(level, o, text, args...)
	}
}

// Errorf writes error log output for this object.  It should always
// be seen by the user.
func Errorf(o interface{}, text string, args ...interface{}) {
	LogLevelPrintf(LogLevelError, o, text, args...)
}

// Logf writes log output for this object.  This should be considered
// to be Notice level logging.  It is the default level.  Only use this
// for important things the user should see, such as the listening
// addresses.  The user can filter these out with the -q flag.
func Logf(o interface{}, text string, args ...interface{}) {
	LogLevelPrintf(LogLevelNotice, o, text, args...)
}

// Infof writes info on requests for this object.  Use this level for
// the access log and things which should appear with the -v flag.
func Infof(o interface{}, text string, args ...interface{}) {
	LogLevelPrintf(LogLevelInfo, o, text, args...)
}

// Debugf writes debugging output for this object.  The user must have
// to specify -vv to see this.
func Debugf(o interface{}, text string, args ...interface{}) {
	LogLevelPrintf(LogLevelDebug, o, text, args...)
}
