package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("localhost:4318"), 2)
	assert.Len(t, exporterOptions("https://otel.example.com"), 1)
	assert.Len(t, exporterOptions("http://tempo:4318/v1/traces"), 3)
}

func TestBusinessEventSpans(t *testing.T) {
	recorder := recordSpans(t)
	be := NewBusinessEvents()

	_, span := be.TraceConversationResolve(context.Background(), "p1", "u1", "u2")
	EndSpan(span, nil)

	_, span = be.TraceSendMessage(context.Background(), "c1", "u1")
	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "messaging.resolve_conversation", ended[0].Name())
	v, ok := attr(ended[0].Attributes(), "other_user.id")
	require.True(t, ok)
	assert.Equal(t, "u2", v.AsString())

	assert.Equal(t, "messaging.send_message", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

type row struct {
	ID   uint
	Name string
}

func TestGORMTracingPlugin(t *testing.T) {
	recorder := recordSpans(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Use(GORMTracingPlugin()))
	require.NoError(t, db.AutoMigrate(&row{}))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&row{Name: "Kelly"}).Error)
	var found row
	require.NoError(t, db.WithContext(ctx).First(&found).Error)
	err = db.WithContext(ctx).First(&found, "name = ?", "missing").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
		if s.Name() == "db.insert" {
			v, ok := attr(s.Attributes(), "db.system")
			require.True(t, ok)
			assert.Equal(t, "sqlite", v.AsString())
		}
		assert.NotEqual(t, codes.Error, s.Status().Code, "record not found is not an error")
	}
	assert.Contains(t, names, "db.insert")
	assert.Contains(t, names, "db.select")
}
