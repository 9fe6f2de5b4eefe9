package goedxcore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/diff/fd"
)

// Value is a parameter estimate with its standard deviation.
// A NaN Std means the uncertainty is unknown.
type Value struct {
	Value float64 `json:"value" yaml:"value"`
	Std   float64 `json:"std" yaml:"std"`
}

// V returns a Value with unknown uncertainty.
func V(v float64) Value {
	return Value{Value: v, Std: math.NaN()}
}

// Scale multiplies both the value and its uncertainty by k.
func Scale(v Value, k float64) Value {
	return Value{Value: v.Value * k, Std: v.Std * math.Abs(k)}
}

// Propagate evaluates f at the values of args and propagates their uncertainties to
// first order, using numerical partial derivatives. Arguments with zero Std, or that
// f does not depend on, are treated as exact; any other argument with NaN Std makes
// the result's Std NaN.
func Propagate(f func(x []float64) float64, args ...Value) Value {
	x := make([]float64, len(args))
	for i, a := range args {
		x[i] = a.Value
	}
	res := Value{Value: f(x)}

	grad := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central})
	var variance float64
	for i, a := range args {
		if a.Std == 0 || grad[i] == 0 {
			continue
		}
		variance += grad[i] * grad[i] * a.Std * a.Std
	}
	res.Std = math.Sqrt(variance)
	return res
}

// Bounds is a closed (min, max) range for a parameter.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Unbounded is the (-Inf, +Inf) range.
var Unbounded = Bounds{Min: math.Inf(-1), Max: math.Inf(1)}

// Clamp returns v limited to [b.Min, b.Max].
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// jsonFloat encodes non-finite numbers as strings since JSON has no NaN or Inf.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*f = jsonFloat(v)
		return nil
	}
	if string(data) == "null" {
		*f = jsonFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type jsonValue struct {
	Value jsonFloat `json:"value"`
	Std   jsonFloat `json:"std"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue{Value: jsonFloat(v.Value), Std: jsonFloat(v.Std)})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	v.Value, v.Std = float64(jv.Value), float64(jv.Std)
	return nil
}

type jsonBounds struct {
	Min jsonFloat `json:"min"`
	Max jsonFloat `json:"max"`
}

func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBounds{Min: jsonFloat(b.Min), Max: jsonFloat(b.Max)})
}

func (b *Bounds) UnmarshalJSON(data []byte) error {
	var jb jsonBounds
	if err := json.Unmarshal(data, &jb); err != nil {
		return err
	}
	b.Min, b.Max = float64(jb.Min), float64(jb.Max)
	return nil
}
