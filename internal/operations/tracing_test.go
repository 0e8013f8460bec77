package operations

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"licensegate/internal/license"
)

var recordedSpans = sync.OnceValue(func() *tracetest.SpanRecorder {
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	return sr
})

func TestProcessJobSpanRecordsLicenseCheck(t *testing.T) {
	sr := recordedSpans()
	f := newQueueFixture(t, Config{}, nil)
	f.queue.UpdateLicenseState(validSnapshot(license.TypeProfessional))
	job := f.enqueue(t, "report", PriorityNormal)

	done := f.queue.ProcessNextJob(context.Background())
	require.NotNil(t, done)

	var checked bool
	for _, span := range sr.Ended() {
		if span.Name() != "operations.ProcessJob" {
			continue
		}
		if !hasAttribute(span.Attributes(), attribute.String("job.id", job.ID)) {
			continue
		}
		for _, e := range span.Events() {
			if e.Name == "license.checked" {
				checked = true
				assert.Contains(t, e.Attributes, attribute.String("license.type", "professional"))
			}
		}
	}
	assert.True(t, checked)
}

func hasAttribute(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}
