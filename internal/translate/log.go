package translate

import (
	"io"
	"log"
)

type logger struct {
	*log.Logger
	debug bool
}

// newLogger returns the run logger: Options.Logger when set, else a logger
// writing to Options.ErrorLog.
func newLogger(o *Options) *logger {
	l := o.Logger
	if l == nil {
		w := o.ErrorLog
		if w == nil {
			w = io.Discard
		}
		l = log.New(w, "ogrtranslate: ", log.LstdFlags)
	}
	return &logger{Logger: l, debug: o.Debug}
}

func (l *logger) warnf(format string, args ...any) {
	l.Printf("[warn] "+format, args...)
}

func (l *logger) errorf(format string, args ...any) {
	l.Printf("[error] "+format, args...)
}

func (l *logger) debugf(format string, args ...any) {
	if l.debug {
		l.Printf("[debug] "+format, args...)
	}
}
