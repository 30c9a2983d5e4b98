package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Gearlay/workerpool/pool"
)

func TestNewParsesLevels(t *testing.T) {
	cases := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		"debug":   logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"fatal":   logrus.FatalLevel,
		"info":    logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for level, want := range cases {
		l := New(level)
		assert.Equal(t, want, l.entry.Logger.Level, "level %q", level)
	}
}

func TestWithFieldSatisfiesPoolLogger(t *testing.T) {
	l := New("info")
	var asPoolLogger pool.Logger = l

	child := asPoolLogger.WithField("worker", "w-1")
	childLogger, ok := child.(*Logger)
	assert.True(t, ok)
	assert.Equal(t, "w-1", childLogger.entry.Data["worker"])
}
