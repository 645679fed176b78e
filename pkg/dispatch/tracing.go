package dispatch

import (
	"github.com/opentracing/opentracing-go"
)

// startSpan opens a span for op if a tracer is configured, returning a
// finish func that is always safe to defer even when tracing is off.
func startSpan(tracer opentracing.Tracer, op string) func() {
	if tracer == nil {
		return func() {}
	}
	span := tracer.StartSpan(op)
	return span.Finish
}
