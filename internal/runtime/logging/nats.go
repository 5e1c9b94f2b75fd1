package logging

import (
	"fmt"

	"github.com/nats-io/nats-server/v2/server"
)

type natsServerLogger struct {
	base ServiceLogger
}

var _ server.Logger = (*natsServerLogger)(nil)

// NewNATSServerLogger routes the embedded NATS server's log output through log.
func NewNATSServerLogger(log ServiceLogger) server.Logger {
	if log == nil {
		panic("contractflow: ServiceLogger cannot be nil")
	}
	return &natsServerLogger{base: log.With(LogFields{"component": "nats-server"})}
}

func (n *natsServerLogger) Noticef(format string, v ...any) {
	n.base.Info(fmt.Sprintf(format, v...), nil)
}

func (n *natsServerLogger) Warnf(format string, v ...any) {
	n.base.Info(fmt.Sprintf(format, v...), LogFields{"level": "warn"})
}

func (n *natsServerLogger) Fatalf(format string, v ...any) {
	n.base.Error(fmt.Sprintf(format, v...), nil, LogFields{"level": "fatal"})
}

func (n *natsServerLogger) Errorf(format string, v ...any) {
	n.base.Error(fmt.Sprintf(format, v...), nil, nil)
}

func (n *natsServerLogger) Debugf(format string, v ...any) {
	n.base.Debug(fmt.Sprintf(format, v...), nil)
}

func (n *natsServerLogger) Tracef(format string, v ...any) {
	n.base.Trace(fmt.Sprintf(format, v...), nil)
}
