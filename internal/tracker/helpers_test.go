package tracker

import (
	"io"

	"github.com/sirupsen/logrus"
)

// testLogger keeps component noise out of test output.
func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}
