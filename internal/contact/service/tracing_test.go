package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	"reconciler/pkg/requestcontext"
)

// spanRecorder notes the name of every span started through it.
type spanRecorder struct {
	noop.TracerProvider
	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{rec: r}
}

func (r *spanRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.names
	r.names = nil
	return names
}

type recordingTracer struct {
	noop.Tracer
	rec *spanRecorder
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.rec.mu.Lock()
	t.rec.names = append(t.rec.names, name)
	t.rec.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func TestIdentifyPhaseSpans(t *testing.T) {
	rec := &spanRecorder{}
	svc, err := service.New(store.NewInMemory(), service.WithTracerProvider(rec))
	require.NoError(t, err)
	ctx := requestcontext.WithTime(context.Background(), time.Now())

	identify := func(email, phone string) {
		t.Helper()
		_, err := svc.Identify(ctx, models.NewIdentifiers(email, phone))
		require.NoError(t, err)
	}

	t.Run("new contact", func(t *testing.T) {
		identify("george@hillvalley.edu", "919191")
		assert.Equal(t, []string{"contact.Identify", "contact.match", "contact.create_primary"}, rec.take())
	})

	t.Run("merge", func(t *testing.T) {
		identify("biffsucks@hillvalley.edu", "717171")
		rec.take()

		identify("george@hillvalley.edu", "717171")
		assert.Equal(t, []string{
			"contact.Identify",
			"contact.match",
			"contact.resolve_primary",
			"contact.merge",
			"contact.fill_gap",
		}, rec.take())
	})

	t.Run("lookup", func(t *testing.T) {
		_, err := svc.Lookup(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"contact.Lookup"}, rec.take())
	})
}
