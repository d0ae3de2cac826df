package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	svc, err := NewEcho("echo-1", nil)
	require.NoError(t, err)

	out, err := svc.Execute(context.Background(), map[string]interface{}{"msg": "hello"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"echoed": "hello"}, out)
	assert.Contains(t, svc.Capabilities(), "echo")
}

func TestTransform(t *testing.T) {
	tests := []struct {
		op   string
		in   string
		want string
	}{
		{"upper", "hello", "HELLO"},
		{"lower", "HeLLo", "hello"},
		{"trim", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			svc, err := NewTransform("tf", map[string]interface{}{"op": tt.op})
			require.NoError(t, err)

			out, err := svc.Execute(context.Background(), map[string]interface{}{"value": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["value"])
		})
	}
}

func TestTransformCustomField(t *testing.T) {
	svc, err := NewTransform("tf", map[string]interface{}{"op": "upper", "field": "name"})
	require.NoError(t, err)

	out, err := svc.Execute(context.Background(), map[string]interface{}{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ADA", out["name"])
}

func TestTransformRejectsBadInput(t *testing.T) {
	_, err := NewTransform("tf", map[string]interface{}{"op": "reverse"})
	assert.Error(t, err, "unsupported op is a build-time failure")

	svc, err := NewTransform("tf", map[string]interface{}{"op": "upper"})
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), map[string]interface{}{})
	assert.Error(t, err)
	_, err = svc.Execute(context.Background(), map[string]interface{}{"value": 7})
	assert.Error(t, err)
}

func TestDelayHonorsCancellation(t *testing.T) {
	svc, err := NewDelay("slow", map[string]interface{}{"duration": "1h"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = svc.Execute(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelayPassesInputThrough(t *testing.T) {
	svc, err := NewDelay("quick", map[string]interface{}{"duration": "1ms"})
	require.NoError(t, err)

	out, err := svc.Execute(context.Background(), map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", out["k"])
	assert.Equal(t, int64(1), out["delayedMs"])
}

func TestDelayRejectsBadDuration(t *testing.T) {
	_, err := NewDelay("bad", map[string]interface{}{"duration": "soon"})
	assert.Error(t, err)
}
