package cache

// Fields carries structured key/value pairs for a log record.
type Fields map[string]any

// Logger is the minimal structured logger the cache writes to.
// Adapters for zap, logrus and slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything. It is the default.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

var _ Logger = NopLogger{}
