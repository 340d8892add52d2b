package openai

import "sync/atomic"

// atomicString is a string that may be swapped while transcriptions are in
// flight.
type atomicString struct {
	v atomic.Pointer[string]
}

func (a *atomicString) Store(s string) { a.v.Store(&s) }

func (a *atomicString) Load() string {
	if p := a.v.Load(); p != nil {
		return *p
	}
	return ""
}
