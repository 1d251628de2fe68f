// Package logging writes one line per core event to an io.Writer. This is in
// an independent package to avoid dependency cycles.
package logging

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

type LogScopes uint64

const (
	LogScopeNone              = LogScopes(0)
	LogScopeCompile LogScopes = 1 << iota
	LogScopeInvalidate
	LogScopeException
	LogScopeHalt
	LogScopeAll = LogScopes(0xffffffffffffffff)
)

func scopeName(s LogScopes) string {
	switch s {
	case LogScopeCompile:
		return "compile"
	case LogScopeInvalidate:
		return "invalidate"
	case LogScopeException:
		return "exception"
	case LogScopeHalt:
		return "halt"
	default:
		return fmt.Sprintf("<unknown=%d>", s)
	}
}

// IsEnabled returns true if the scope (or group of scopes) is enabled.
func (f LogScopes) IsEnabled(scope LogScopes) bool {
	return f&scope != 0
}

// String implements fmt.Stringer by returning each enabled log scope.
func (f LogScopes) String() string {
	if f == LogScopeAll {
		return "all"
	}
	var builder strings.Builder
	for i := 0; i <= 63; i++ { // cycle through all bits to reduce code and maintenance
		target := LogScopes(1 << i)
		if f.IsEnabled(target) {
			if name := scopeName(target); name != "" {
				if builder.Len() > 0 {
					builder.WriteByte('|')
				}
				builder.WriteString(name)
			}
		}
	}
	return builder.String()
}

type Writer interface {
	io.Writer
	io.StringWriter
	io.ByteWriter
}

// Logger formats events of the enabled scopes. A nil *Logger logs nothing, so
// callers check IsEnabled before building arguments.
type Logger struct {
	out    io.Writer
	scopes LogScopes
	// line is reused across events. Each event is written with one Write.
	line strings.Builder
}

// NewLogger returns a Logger writing the given scopes to out, or nil if out is
// nil or no scope is enabled.
func NewLogger(out io.Writer, scopes LogScopes) *Logger {
	if out == nil || scopes == LogScopeNone {
		return nil
	}
	return &Logger{out: out, scopes: scopes}
}

// IsEnabled returns true if events of scope are written.
func (l *Logger) IsEnabled(scope LogScopes) bool {
	return l != nil && l.scopes.IsEnabled(scope)
}

// BlockCompiled logs a block of n guest instructions covering [addr, end).
func (l *Logger) BlockCompiled(core string, addr, end uint32, attr string, n int, backend string) {
	if !l.IsEnabled(LogScopeCompile) {
		return
	}
	w := l.begin(core, "compile")
	WriteRange(w, addr, end)
	w.WriteByte(' ')               //nolint
	w.WriteString(attr)            //nolint
	w.WriteString(" insts=")       //nolint
	w.WriteString(strconv.Itoa(n)) //nolint
	w.WriteString(" backend=")     //nolint
	w.WriteString(backend)         //nolint
	l.end()
}

// BlockInvalidated logs the removal of the block covering [addr, end) after a
// write to [start, stop).
func (l *Logger) BlockInvalidated(core string, addr, end, start, stop uint32) {
	if !l.IsEnabled(LogScopeInvalidate) {
		return
	}
	w := l.begin(core, "invalidate")
	WriteRange(w, addr, end)
	w.WriteString(" write=") //nolint
	WriteRange(w, start, stop)
	l.end()
}

// Exception logs the entry into the exception vector.
func (l *Logger) Exception(core, vector string, lr, pc uint32) {
	if !l.IsEnabled(LogScopeException) {
		return
	}
	w := l.begin(core, "exception")
	w.WriteString(vector) //nolint
	w.WriteString(" lr=") //nolint
	WriteHex32(w, lr)
	w.WriteString(" pc=") //nolint
	WriteHex32(w, pc)
	l.end()
}

// Halt logs the core halting until the next interrupt.
func (l *Logger) Halt(core string, pc uint32, cycles uint64) {
	if !l.IsEnabled(LogScopeHalt) {
		return
	}
	w := l.begin(core, "halt")
	w.WriteString("pc=") //nolint
	WriteHex32(w, pc)
	w.WriteString(" cycles=")                     //nolint
	w.WriteString(strconv.FormatUint(cycles, 10)) //nolint
	l.end()
}

func (l *Logger) begin(core, event string) Writer {
	l.line.Reset()
	l.line.WriteString(core)  //nolint
	l.line.WriteByte(' ')     //nolint
	l.line.WriteString(event) //nolint
	l.line.WriteByte(' ')     //nolint
	return &l.line
}

func (l *Logger) end() {
	l.line.WriteByte('\n')                 //nolint
	io.WriteString(l.out, l.line.String()) //nolint
}

// WriteHex32 writes v as 8 hex digits with a 0x prefix.
func WriteHex32(w Writer, v uint32) {
	const digits = "0123456789abcdef"
	w.WriteString("0x") //nolint
	for shift := 28; shift >= 0; shift -= 4 {
		w.WriteByte(digits[(v>>shift)&0xf]) //nolint
	}
}

// WriteRange writes the half-open range [start, end).
func WriteRange(w Writer, start, end uint32) {
	w.WriteByte('[') //nolint
	WriteHex32(w, start)
	w.WriteByte(',') //nolint
	WriteHex32(w, end)
	w.WriteByte(')') //nolint
}
