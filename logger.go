package gline

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Logger 为日志出口：单一调用，fire-and-forget。
type Logger interface {
	Log(message string)
}

// LoggerFunc 将普通函数适配为 Logger。
type LoggerFunc func(message string)

func (f LoggerFunc) Log(message string) { f(message) }

type logrusLogger struct {
	l log.FieldLogger
}

// NewLogrusLogger 将 logrus logger（或带字段的 Entry）适配为 Logger，消息以 info 级别输出。
func NewLogrusLogger(l log.FieldLogger) Logger {
	if l == nil {
		l = log.StandardLogger()
	}
	return logrusLogger{l: l}
}

func (l logrusLogger) Log(message string) { l.l.Info(message) }

func defaultLogger() Logger {
	return NewLogrusLogger(log.StandardLogger().WithField("component", "gline"))
}

func (s *Server) logf(format string, args ...any) {
	s.log.Log(fmt.Sprintf(format, args...))
}
