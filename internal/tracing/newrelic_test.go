package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/carniceria/pedidos/config"
)

func TestNewTracerWithoutLicenseKey(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	require.NotPanics(t, func() {
		txn := tracer.StartTransaction("noop")
		tracer.AddAttribute(txn, "clave", "valor")
		tracer.RecordError(txn, errors.New("ignorado"))
		tracer.EndTransaction(txn)
	})
}

func TestNewTracerInvalidLicenseKeyStillUsable(t *testing.T) {
	// License keys must be 40 characters; a malformed one fails app init.
	tracer, err := NewTracer(config.TracingConfig{
		AppName:    "pedidos-test",
		LicenseKey: "too-short",
	})
	require.Error(t, err)
	require.NotNil(t, tracer, "callers wire the tracer even after a failed init")

	require.NotPanics(t, func() {
		txn := tracer.StartTransaction("noop")
		tracer.EndTransaction(txn)
	})
}
