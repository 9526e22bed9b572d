package pool

import "github.com/sirupsen/logrus"

// FieldLogger is the minimal structured-logging surface this package needs,
// satisfied directly by *logrus.Logger and *logrus.Entry (SPEC_FULL.md
// §2.2). Defining our own narrow interface rather than depending on the
// concrete *logrus.Logger type keeps the factory/pool boundary free of
// logrus outside this one file.
type FieldLogger interface {
	WithField(key string, value interface{}) *logrus.Entry
	WithError(err error) *logrus.Entry
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

func defaultLogger() FieldLogger {
	return logrus.StandardLogger()
}
