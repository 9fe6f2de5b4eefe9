package goedxcore

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropagate_Product(t *testing.T) {
	v := Propagate(func(x []float64) float64 { return x[0] * x[1] },
		Value{Value: 3, Std: 0.1}, Value{Value: 4, Std: 0.2})

	assert.InDelta(t, 12, v.Value, 1e-12)
	// sqrt((4*0.1)^2 + (3*0.2)^2)
	assert.InDelta(t, math.Sqrt(0.16+0.36), v.Std, 1e-6)
}

func TestPropagate_ExactAndUnusedArguments(t *testing.T) {
	f := func(x []float64) float64 { return 2 * x[0] }

	v := Propagate(f, Value{Value: 1, Std: 0.5}, V(7))
	assert.InDelta(t, 1, v.Std, 1e-6, "an argument f ignores must not spread its NaN")

	v = Propagate(f, Value{Value: 1, Std: 0}, V(7))
	assert.Equal(t, 0., v.Std)

	v = Propagate(f, V(1))
	assert.True(t, math.IsNaN(v.Std))
}

func TestScale(t *testing.T) {
	v := Scale(Value{Value: 2, Std: 0.5}, -3)
	assert.Equal(t, -6., v.Value)
	assert.Equal(t, 1.5, v.Std)
}

func TestBounds_Clamp(t *testing.T) {
	b := Bounds{Min: -1, Max: 2}
	assert.Equal(t, -1., b.Clamp(-5))
	assert.Equal(t, 2., b.Clamp(5))
	assert.Equal(t, 0.5, b.Clamp(0.5))
	assert.Equal(t, 1e300, Unbounded.Clamp(1e300))
}

func TestValueJSON_NonFinite(t *testing.T) {
	data, err := json.Marshal(V(1.5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1.5,"std":"NaN"}`, string(data))

	data, err = json.Marshal(Unbounded)
	require.NoError(t, err)
	assert.JSONEq(t, `{"min":"-Inf","max":"+Inf"}`, string(data))

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"value":2,"std":"NaN"}`), &v))
	assert.Equal(t, 2., v.Value)
	assert.True(t, math.IsNaN(v.Std))

	require.NoError(t, json.Unmarshal([]byte(`{"value":2,"std":null}`), &v))
	assert.True(t, math.IsNaN(v.Std))

	var b Bounds
	require.NoError(t, json.Unmarshal([]byte(`{"min":"-Inf","max":10}`), &b))
	assert.True(t, math.IsInf(b.Min, -1))
	assert.Equal(t, 10., b.Max)

	assert.Error(t, json.Unmarshal([]byte(`{"value":"abc"}`), &v))
}
