package orm

import (
	"context"

	"github.com/sirupsen/logrus"
)

type logrusLogger struct {
	l logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus logger to Logger. Queries are logged
// at debug level with their arguments attached as a field.
//
//	db = db.Debug(orm.NewLogrusLogger(logrus.StandardLogger()))
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return logrusLogger{l: l}
}

func (g logrusLogger) Log(_ context.Context, query string, args ...any) {
	g.l.WithField("args", args).Debug(query)
}
