package adapt

import "github.com/sirupsen/logrus"

// discardLogger is the default used by NewProtocol when no WithLogger option
// is supplied: adaptation registration is chatty enough (one event per
// RegisterType/RegisterImplied call) that silence, not stderr, should be the
// out-of-the-box behaviour.
func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrus.NewEntry(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
