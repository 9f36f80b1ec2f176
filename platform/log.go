package platform

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook 按天切换日志文件
type Hook struct {
	mu       sync.Mutex
	writer   *os.File
	logPath  string
	fileName string
	fileDate string
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	timer := entry.Time.Format("2006-01-02")
	//需要切换日志文件
	if h.fileDate != timer || h.writer == nil {
		if h.writer != nil {
			h.writer.Close()
		}
		writer, err := openLogFile(h.logPath, h.fileName, timer)
		if err != nil {
			h.writer = nil
			return err
		}
		h.fileDate = timer
		h.writer = writer
	}
	_, err = h.writer.Write(line)
	return err
}

// Close 关闭当前日志文件
func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer == nil {
		return nil
	}
	err := h.writer.Close()
	h.writer = nil
	return err
}

type LogFormatter struct {
}

func (m *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(b, "[%s] [%s] %s", timestamp, entry.Level, entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// NewLogger 创建应用日志，logDir 为空时只输出到 stderr
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	if cfg == nil {
		return logger, nil
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.LogDir == "" {
		return logger, nil
	}

	if err := os.MkdirAll(cfg.LogDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	timer := time.Now().Format("2006-01-02")
	writer, err := openLogFile(cfg.LogDir, "praxischat", timer)
	if err != nil {
		return nil, err
	}
	logger.AddHook(&Hook{
		writer:   writer,
		logPath:  cfg.LogDir,
		fileName: "praxischat",
		fileDate: timer,
	})
	return logger, nil
}

// NewDiscardLogger 测试用
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(io.Discard)
	return logger
}

func openLogFile(logPath, fileName, date string) (*os.File, error) {
	filename := filepath.Join(logPath, fmt.Sprintf("%s-%s.log", date, fileName))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
