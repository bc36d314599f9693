// Package metrics records oracle call latency, outcome and token usage.
package metrics

import "time"

// Recorder receives one observation per oracle call.
type Recorder interface {
	ObserveRequest(model, stage string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)
}

type nopRecorder struct{}

// Nop returns a recorder that discards everything.
func Nop() Recorder { return nopRecorder{} }

func (nopRecorder) ObserveRequest(string, string, int, int, bool, string, time.Duration) {}

// Multi fans observations out to every recorder.
func Multi(recorders ...Recorder) Recorder { return multiRecorder(recorders) }

type multiRecorder []Recorder

func (m multiRecorder) ObserveRequest(model, stage string, p, c int, ok bool, et string, d time.Duration) {
	for _, r := range m {
		r.ObserveRequest(model, stage, p, c, ok, et, d)
	}
}
