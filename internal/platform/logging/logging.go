package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LogRetentionDays is how long rotated log files are kept on disk.
const LogRetentionDays = 7

var DefaultLogger *Logger

// Config captures logging configuration options.
type Config struct {
	Level    string `yaml:"log_level" json:"log_level"`
	Dir      string `yaml:"log_dir" json:"log_dir"`
	Filename string `yaml:"log_file" json:"log_file"`
}

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// tagColors maps pipeline stage tags to their console colors. Messages
// carrying an unknown tag fall through to plain level coloring.
var tagColors = map[string]string{
	"BOOT":          "\x1b[96m",
	"CONFIG":        "\x1b[36m",
	"SRCSET":        "\x1b[34m",
	"PLACEHOLDER":   "\x1b[35m",
	"BLUR":          "\x1b[95m",
	"LOADER":        "\x1b[92m",
	"MEDIA":         "\x1b[94m",
	"STORY":         "\x1b[97m",
	"SHARE":         "\x1b[93m",
	"HTTP":          "\x1b[95m",
	"WS":            "\x1b[92m",
	"EVENT":         "\x1b[93m",
	"STORE":         "\x1b[33m",
	"OBSERVABILITY": "\x1b[90m",
}

// CustomTextHandler renders colored single-line console output and
// highlights stage-tagged messages such as "[LOADER] dwell elapsed".
type CustomTextHandler struct {
	writer io.Writer
	level  slog.Level
	mu     sync.Mutex
}

func (h *CustomTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

// tagColorFor returns the color for a "[TAG] ..." prefixed message,
// or "" when the message carries no known tag.
func tagColorFor(msg string) string {
	if !strings.HasPrefix(msg, "[") {
		return ""
	}
	end := strings.IndexByte(msg, ']')
	if end < 2 {
		return ""
	}
	return tagColors[msg[1:end]]
}

func (h *CustomTextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelStr string
	var levelColor string
	switch r.Level {
	case slog.LevelDebug:
		levelStr, levelColor = "DEBUG", colorDebug
	case slog.LevelInfo:
		levelStr, levelColor = "INFO", colorInfo
	case slog.LevelWarn:
		levelStr, levelColor = "WARN", colorWarn
	case slog.LevelError:
		levelStr, levelColor = "ERROR", colorError
	default:
		levelStr, levelColor = "INFO", colorReset
	}

	msg := r.Message
	var output string
	if moduleColor := tagColorFor(msg); moduleColor != "" {
		// Tagged format: [time] [TAG] message
		output = fmt.Sprintf("%s[%s]%s %s%s%s",
			colorTime, timeStr, colorReset,
			moduleColor, msg, colorReset)
	} else {
		// Plain format: [time] [LEVEL] message
		output = fmt.Sprintf("%s[%s]%s %s[%s]%s %s",
			colorTime, timeStr, colorReset,
			levelColor, levelStr, colorReset,
			msg)
	}

	if r.NumAttrs() > 0 {
		output += " {"
		r.Attrs(func(a slog.Attr) bool {
			output += fmt.Sprintf(" %s=%v", a.Key, a.Value)
			return true
		})
		output += " }"
	}
	output += "\n"

	_, err := h.writer.Write([]byte(output))
	return err
}

func (h *CustomTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *CustomTextHandler) WithGroup(name string) slog.Handler {
	return h
}

// Logger writes every record twice: JSON to a daily-rotated file and
// colored text to the console.
type Logger struct {
	config      *Config
	level       slog.Level
	jsonLogger  *slog.Logger
	textLogger  *slog.Logger
	logFile     *os.File
	currentDate string
	mu          sync.RWMutex
	ticker      *time.Ticker
	stopCh      chan struct{}
}

func configLogLevelToSlogLevel(configLevel string) slog.Level {
	switch strings.ToLower(configLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to cfg.Dir/cfg.Filename and to stdout.
// The first logger created becomes the package DefaultLogger.
func New(cfg *Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %v", err)
	}

	logPath := filepath.Join(cfg.Dir, cfg.Filename)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %v", err)
	}

	slogLevel := configLogLevelToSlogLevel(cfg.Level)

	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slogLevel,
	})
	customHandler := &CustomTextHandler{
		writer: os.Stdout,
		level:  slogLevel,
	}

	logger := &Logger{
		config:      cfg,
		level:       slogLevel,
		jsonLogger:  slog.New(jsonHandler),
		textLogger:  slog.New(customHandler),
		logFile:     file,
		currentDate: time.Now().Format("2006-01-02"),
		stopCh:      make(chan struct{}),
	}

	logger.startRotationChecker()
	if DefaultLogger == nil {
		DefaultLogger = logger
	}

	return logger, nil
}

func (l *Logger) startRotationChecker() {
	l.ticker = time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-l.ticker.C:
				l.checkAndRotate()
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Logger) checkAndRotate() {
	today := time.Now().Format("2006-01-02")
	if today != l.currentDate {
		l.rotateLogFile(today)
		l.cleanOldLogs()
	}
}

// rotateLogFile archives the active file under a dated name and reopens
// a fresh one, e.g. server.log -> server-2025-11-03.log.
func (l *Logger) rotateLogFile(newDate string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logFile.Close()
	}

	logDir := l.config.Dir
	currentLogPath := filepath.Join(logDir, l.config.Filename)

	baseFileName := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)
	archivedLogPath := filepath.Join(logDir, fmt.Sprintf("%s-%s%s", baseFileName, l.currentDate, ext))

	if _, err := os.Stat(currentLogPath); err == nil {
		if err := os.Rename(currentLogPath, archivedLogPath); err != nil {
			l.textLogger.Error("rename log file failed", slog.String("error", err.Error()))
		}
	}

	file, err := os.OpenFile(currentLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.textLogger.Error("create new log file failed", slog.String("error", err.Error()))
		return
	}

	l.logFile = file
	l.currentDate = newDate

	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: l.level,
	})
	l.jsonLogger = slog.New(jsonHandler)

	l.textLogger.Info("log file rotated", slog.String("new_date", newDate))
}

func (l *Logger) cleanOldLogs() {
	logDir := l.config.Dir

	entries, err := os.ReadDir(logDir)
	if err != nil {
		l.textLogger.Error("read log directory failed", slog.String("error", err.Error()))
		return
	}

	cutoffDate := time.Now().AddDate(0, 0, -LogRetentionDays)
	baseFileName := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileName := entry.Name()
		// Dated archives look like server-YYYY-MM-DD.log.
		if strings.HasPrefix(fileName, baseFileName+"-") && strings.HasSuffix(fileName, ext) {
			dateStr := strings.TrimPrefix(fileName, baseFileName+"-")
			dateStr = strings.TrimSuffix(dateStr, ext)

			fileDate, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				continue
			}

			if fileDate.Before(cutoffDate) {
				filePath := filepath.Join(logDir, fileName)
				if err := os.Remove(filePath); err != nil {
					l.textLogger.Error("remove old log file failed",
						slog.String("file", fileName),
						slog.String("error", err.Error()))
				} else {
					l.textLogger.Info("removed old log file", slog.String("file", fileName))
				}
			}
		}
	}
}

// Close stops the rotation checker and closes the log file.
func (l *Logger) Close() error {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	close(l.stopCh)
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func (l *Logger) log(level slog.Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var attrs []slog.Attr
	if len(fields) > 0 && fields[0] != nil {
		if fieldsMap, ok := fields[0].(map[string]interface{}); ok {
			// Sort keys so file and console output stay deterministic.
			keys := make([]string, 0, len(fieldsMap))
			for k := range fieldsMap {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				attrs = append(attrs, slog.Any(k, fieldsMap[k]))
			}
		} else {
			attrs = append(attrs, slog.Any("fields", fields[0]))
		}
	}

	ctx := context.Background()
	l.jsonLogger.LogAttrs(ctx, level, msg, attrs...)
	l.textLogger.LogAttrs(ctx, level, msg, attrs...)
}

// containsFormatPlaceholders decides between printf-style and structured
// dispatch for the variadic logging methods.
func containsFormatPlaceholders(s string) bool {
	return strings.Contains(s, "%")
}

// FormatLog builds a tagged message, e.g. FormatLog("LOADER", "dwell done")
// -> "[LOADER] dwell done". Messages already starting with "[" are
// returned unchanged.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" {
		return message
	}
	if strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) logWithTag(level slog.Level, tag, msg string, args ...interface{}) {
	switch level {
	case slog.LevelDebug:
		l.Debug(FormatLog(tag, msg), args...)
	case slog.LevelInfo:
		l.Info(FormatLog(tag, msg), args...)
	case slog.LevelWarn:
		l.Warn(FormatLog(tag, msg), args...)
	case slog.LevelError:
		l.Error(FormatLog(tag, msg), args...)
	default:
		l.Info(FormatLog(tag, msg), args...)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level > slog.LevelDebug {
		return
	}
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(slog.LevelDebug, fmt.Sprintf(msg, args...))
	} else {
		l.log(slog.LevelDebug, msg, args...)
	}
}

// Info logs at info level. With format placeholders in msg the args are
// interpolated printf-style, otherwise the first arg is treated as a
// structured fields map.
func (l *Logger) Info(msg string, args ...interface{}) {
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(slog.LevelInfo, fmt.Sprintf(msg, args...))
	} else {
		l.log(slog.LevelInfo, msg, args...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(slog.LevelWarn, fmt.Sprintf(msg, args...))
	} else {
		l.log(slog.LevelWarn, msg, args...)
	}
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...interface{}) {
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(slog.LevelError, fmt.Sprintf(msg, args...))
	} else {
		l.log(slog.LevelError, msg, args...)
	}
}

// DebugTag logs a debug message under a stage tag. Safe on a nil logger.
func (l *Logger) DebugTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logWithTag(slog.LevelDebug, tag, msg, args...)
}

// InfoTag logs an info message under a stage tag. Safe on a nil logger.
func (l *Logger) InfoTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logWithTag(slog.LevelInfo, tag, msg, args...)
}

// WarnTag logs a warning under a stage tag. Safe on a nil logger.
func (l *Logger) WarnTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logWithTag(slog.LevelWarn, tag, msg, args...)
}

// ErrorTag logs an error under a stage tag. Safe on a nil logger.
func (l *Logger) ErrorTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logWithTag(slog.LevelError, tag, msg, args...)
}

// Slog exposes the underlying slog text logger for structured integrations.
func (l *Logger) Slog() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textLogger
}
