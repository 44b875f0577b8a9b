package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// Logger 全局日志实例, debug/warn 走这里
	Logger *logrus.Logger
	// InfoLogger 信息日志实例
	InfoLogger *logrus.Logger
	// ErrorLogger 错误日志实例
	ErrorLogger *logrus.Logger
)

var (
	mu sync.Mutex
	// 当前打开的日志文件, 下次 InitLogger 时关闭
	openFiles []*os.File
)

const timestampFormat = "15:04:05 MST 2006/01/02"

// LogConfig 日志配置
type LogConfig struct {
	ErrorLogPath string
	InfoLogPath  string
	LogLevel     string
}

// CustomFormatter renders "[time] [LEVL] (file:func:line) message".
type CustomFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	format := f.TimestampFormat
	if format == "" {
		format = timestampFormat
	}
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] (%s) %s", entry.Time.Format(format), level, getCaller(), entry.Message)
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// getCaller walks past logrus frames and this package to the real call site.
func getCaller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "sirupsen/logrus") ||
			strings.HasSuffix(file, "/logger/logger.go") {
			continue
		}
		return fmt.Sprintf("%s:%s:%d", filepath.Base(file), shortFuncName(runtime.FuncForPC(pc)), line)
	}
	return "unknown:unknown:0"
}

func shortFuncName(fn *runtime.Func) string {
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// ParseLogLevel 解析日志级别字符串, 未知级别按 info 处理
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func init() {
	// Until InitLogger runs, library code logs warnings and above to stderr.
	Logger = newLogger(logrus.WarnLevel, os.Stderr)
	InfoLogger = newLogger(logrus.WarnLevel, os.Stderr)
	ErrorLogger = newLogger(logrus.WarnLevel, os.Stderr)
}

func newLogger(level logrus.Level, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&CustomFormatter{TimestampFormat: timestampFormat})
	l.SetLevel(level)
	l.SetOutput(out)
	return l
}

// InitLogger 初始化日志. Command output owns stdout, so log lines go to stderr
// unless a file is configured, in which case they are teed into it.
// The three loggers are never replaced, only reconfigured, so callers may log
// while another goroutine re-initializes. Files opened by an earlier call are
// closed once nothing writes to them.
func InitLogger(config LogConfig) error {
	level := ParseLogLevel(config.LogLevel)

	mu.Lock()
	defer mu.Unlock()

	var files []*os.File
	infoOut, errorOut := io.Writer(os.Stderr), io.Writer(os.Stderr)
	if config.InfoLogPath != "" {
		f, err := openLogFile(config.InfoLogPath)
		if err != nil {
			ErrorLogger.Warnf("failed to open info log file %s, fallback to stderr: %v", config.InfoLogPath, err)
		} else {
			files = append(files, f)
			infoOut = io.MultiWriter(os.Stderr, f)
		}
	}
	if config.ErrorLogPath != "" {
		f, err := openLogFile(config.ErrorLogPath)
		if err != nil {
			ErrorLogger.Warnf("failed to open error log file %s, fallback to stderr: %v", config.ErrorLogPath, err)
		} else {
			files = append(files, f)
			errorOut = io.MultiWriter(os.Stderr, f)
		}
	}

	// logrus swaps the writer under its own lock
	for _, l := range []*logrus.Logger{Logger, InfoLogger, ErrorLogger} {
		l.SetLevel(level)
	}
	Logger.SetOutput(infoOut)
	InfoLogger.SetOutput(infoOut)
	ErrorLogger.SetOutput(errorOut)

	for _, f := range openFiles {
		f.Close()
	}
	openFiles = files
	return nil
}

// Close detaches the loggers from their files and closes them.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	SetOutput(os.Stderr)
	var firstErr error
	for _, f := range openFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	openFiles = nil
	return firstErr
}

// SetOutput redirects all three loggers, mostly for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
	InfoLogger.SetOutput(w)
	ErrorLogger.SetOutput(w)
}

func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// WithField returns an entry on the debug logger carrying one structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns an entry on the debug logger carrying structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func Info(args ...interface{}) {
	InfoLogger.Info(args...)
}

func Infof(format string, args ...interface{}) {
	InfoLogger.Infof(format, args...)
}

func Debug(args ...interface{}) {
	Logger.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warn(args ...interface{}) {
	Logger.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Error(args ...interface{}) {
	ErrorLogger.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	ErrorLogger.Errorf(format, args...)
}

// Fatal 记录致命错误日志并退出
func Fatal(args ...interface{}) {
	ErrorLogger.Fatal(args...)
}

// Fatalf 记录格式化致命错误日志并退出
func Fatalf(format string, args ...interface{}) {
	ErrorLogger.Fatalf(format, args...)
}
