// Package goroutineid reads the current goroutine's id from its stack header.
//
// It exists for one purpose: letting code that owns a goroutine recognise
// re-entrant calls made from it, which would otherwise block forever.
package goroutineid

import (
	"runtime"
)

// the header "goroutine 18446744073709551615 [" fits comfortably
const headerSize = 64

var header = []byte("goroutine ")

// Get returns the current goroutine id, or 0 if it cannot be determined.
func Get() int64 {
	var buf [headerSize]byte
	n := runtime.Stack(buf[:], false)
	return parse(buf[:n])
}

// parse reads the decimal id following "goroutine " at the start of stack.
func parse(stack []byte) int64 {
	if len(stack) <= len(header) {
		return 0
	}
	for i := range header {
		if stack[i] != header[i] {
			return 0
		}
	}
	var id int64
	digits := 0
	for _, b := range stack[len(header):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	return id
}
