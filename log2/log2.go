// Package log2 is a thin leveled wrapper around stdlib log.
// Level checks and changes are safe for concurrent use.
// A nil *Log is valid and silent, which keeps call sites free of guards
// and lets tests route everything into t.Logf().
package log2

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"
	"sync/atomic"
	"testing"
)

const (
	Lmicroseconds     int = log.Lmicroseconds
	Lshortfile        int = log.Lshortfile
	LStdFlags         int = log.Ltime | Lshortfile
	LInteractiveFlags int = log.Ltime | Lshortfile | Lmicroseconds
	LServiceFlags     int = Lshortfile
	LTestFlags        int = Lshortfile | Lmicroseconds
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
	LAll Level = math.MaxInt32
)

type FmtFunc func(format string, args ...interface{})

type fmtFuncWriter struct{ f FmtFunc }

func (ffw fmtFuncWriter) Write(b []byte) (int, error) {
	ffw.f(string(b))
	return len(b), nil
}

type Log struct {
	l      *log.Logger
	level  Level
	w      io.Writer
	onErr  atomic.Value // func(error)
	fatalf FmtFunc
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

func NewWriter(w io.Writer, level Level) *Log {
	if w == ioutil.Discard {
		return nil
	}
	return &Log{
		l:     log.New(w, "", LStdFlags),
		level: level,
		w:     w,
	}
}

func NewFunc(f FmtFunc, level Level) *Log { return NewWriter(fmtFuncWriter{f}, level) }

func NewTest(t testing.TB, level Level) *Log {
	lg := NewFunc(t.Logf, level)
	lg.SetFlags(LTestFlags)
	lg.fatalf = t.Fatalf
	return lg
}

// Clone returns an independent logger to the same writer with its own level.
func (lg *Log) Clone(level Level) *Log {
	if lg == nil {
		return nil
	}
	n := NewWriter(lg.w, level)
	n.l.SetFlags(lg.l.Flags())
	n.fatalf = lg.fatalf
	return n
}

func (lg *Log) SetLevel(l Level) {
	if lg == nil {
		return
	}
	atomic.StoreInt32((*int32)(&lg.level), int32(l))
}

func (lg *Log) SetFlags(f int) {
	if lg == nil {
		return
	}
	lg.l.SetFlags(f)
}

func (lg *Log) SetPrefix(prefix string) {
	if lg == nil {
		return
	}
	lg.l.SetPrefix(prefix)
}

// SetErrorFunc registers a callback invoked with every Error/Errorf argument.
// Lets telemetry observe errors without touching call sites.
func (lg *Log) SetErrorFunc(f func(error)) {
	if lg == nil {
		return
	}
	lg.onErr.Store(f)
}

func (lg *Log) Enabled(level Level) bool {
	if lg == nil {
		return false
	}
	return atomic.LoadInt32((*int32)(&lg.level)) >= int32(level)
}

func (lg *Log) Log(level Level, s string) {
	if lg.Enabled(level) {
		_ = lg.l.Output(3, s)
	}
}

func (lg *Log) Logf(level Level, format string, args ...interface{}) {
	if lg.Enabled(level) {
		_ = lg.l.Output(3, fmt.Sprintf(format, args...))
	}
}

func (lg *Log) Error(args ...interface{}) {
	if lg == nil {
		return
	}
	if len(args) == 1 {
		if e, ok := args[0].(error); ok {
			lg.error(e)
		}
	}
	lg.Log(LError, "error: "+fmt.Sprint(args...))
}

func (lg *Log) Errorf(format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.error(fmt.Errorf(format, args...))
	lg.Logf(LError, "error: "+format, args...)
}

func (lg *Log) Info(args ...interface{})                 { lg.Log(LInfo, fmt.Sprint(args...)) }
func (lg *Log) Infof(format string, args ...interface{}) { lg.Logf(LInfo, format, args...) }

// Printf and Println satisfy logger interfaces of third-party libraries.
func (lg *Log) Printf(format string, args ...interface{}) { lg.Logf(LInfo, format, args...) }
func (lg *Log) Println(args ...interface{})               { lg.Log(LInfo, fmt.Sprint(args...)) }

func (lg *Log) Debug(args ...interface{}) { lg.Log(LDebug, "debug: "+fmt.Sprint(args...)) }
func (lg *Log) Debugf(format string, args ...interface{}) {
	lg.Logf(LDebug, "debug: "+format, args...)
}

func (lg *Log) Fatal(args ...interface{}) {
	s := fmt.Sprint(args...)
	if lg != nil && lg.fatalf != nil {
		lg.fatalf(s)
		return
	}
	lg.Logf(LError, "fatal: "+s)
	os.Exit(1)
}

func (lg *Log) Fatalf(format string, args ...interface{}) {
	if lg != nil && lg.fatalf != nil {
		lg.fatalf(format, args...)
		return
	}
	lg.Logf(LError, "fatal: "+format, args...)
	os.Exit(1)
}

func (lg *Log) error(e error) {
	if f, ok := lg.onErr.Load().(func(error)); ok && f != nil {
		f(e)
	}
}
