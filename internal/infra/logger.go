package infra

import "log"

// StdLogger adapts the standard logger to the Infof/Errorf interface the
// background workers take.
type StdLogger struct {
	Prefix string
}

func (l StdLogger) Infof(format string, args ...interface{}) {
	log.Printf(l.Prefix+"INFO "+format, args...)
}

func (l StdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(l.Prefix+"ERROR "+format, args...)
}
