package util

import (
	"io"
	"net/netip"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat enables JSON log format
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns a logger with multiple fields
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithOperation returns a logger with operation context
func WithOperation(operation string) *logrus.Entry {
	return Logger.WithField("operation", operation)
}

// WithVlan returns a logger with VLAN context
func WithVlan(vlan uint16) *logrus.Entry {
	return Logger.WithField("vlan", vlan)
}

// WithPort returns a logger with port context
func WithPort(port uint32) *logrus.Entry {
	return Logger.WithField("port", port)
}

// WithRoute returns a logger with router and prefix context
func WithRoute(router uint32, prefix netip.Prefix) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"router": router,
		"prefix": prefix.String(),
	})
}

// WithNextHop returns a logger with next hop context
func WithNextHop(addr netip.Addr, vlan uint16) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"nexthop": addr.String(),
		"vlan":    vlan,
	})
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}
