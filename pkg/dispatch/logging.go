package dispatch

import "github.com/sirupsen/logrus"

// discardLogger is the default used when a GenericFunction is constructed
// without WithGFLogger: registration and recompilation events are logged at
// Debug, which would otherwise be noisy on stderr by default.
func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrus.NewEntry(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
