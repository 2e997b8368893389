package integration

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"github.com/golang/geo/r3"
)

type encodedAxes struct {
	X *json.Number `json:"x"`
	Y *json.Number `json:"y"`
	Z *json.Number `json:"z"`
}

type encodedSample struct {
	Accel    *encodedAxes `json:"accel"`
	DTMicros *json.Number `json:"dt_us"`
}

// DecodeSample parses {"accel":{"x":..,"y":..,"z":..},"dt_us":..} with accel
// in g. dt_us is optional; when absent the pipeline uses the wall clock.
// Missing, null or non-numeric accel fields are InvalidSample.
func DecodeSample(data []byte) (Sample, error) {
	errFactory := errors.New()

	var enc encodedSample
	if err := json.Unmarshal(data, &enc); err != nil {
		return Sample{}, errFactory.Wrap(ErrInvalidSample, err)
	}
	if enc.Accel == nil {
		return Sample{}, invalidField("accel")
	}

	x, err := axis("accel.x", enc.Accel.X)
	if err != nil {
		return Sample{}, err
	}
	y, err := axis("accel.y", enc.Accel.Y)
	if err != nil {
		return Sample{}, err
	}
	z, err := axis("accel.z", enc.Accel.Z)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Accel: r3.Vector{X: x, Y: y, Z: z}}

	if enc.DTMicros != nil {
		us, err := enc.DTMicros.Int64()
		if err != nil || us < 0 {
			return Sample{}, invalidField("dt_us")
		}
		s.DT = time.Duration(us) * time.Microsecond
		s.HasDT = true
	}

	return s, nil
}

// EncodeSample is the inverse of DecodeSample.
func EncodeSample(s Sample) ([]byte, error) {
	if !finite(s.Accel) {
		return nil, invalidField("accel")
	}

	num := func(v float64) *json.Number {
		n := json.Number(strconv.FormatFloat(v, 'g', -1, 64))
		return &n
	}
	enc := encodedSample{
		Accel: &encodedAxes{X: num(s.Accel.X), Y: num(s.Accel.Y), Z: num(s.Accel.Z)},
	}
	if s.HasDT || s.DT > 0 {
		n := json.Number(strconv.FormatInt(s.DT.Microseconds(), 10))
		enc.DTMicros = &n
	}

	return json.Marshal(enc)
}

func axis(field string, n *json.Number) (float64, error) {
	if n == nil {
		return 0, invalidField(field)
	}
	v, err := n.Float64()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalidField(field)
	}
	return v, nil
}

func invalidField(field string) error {
	return errors.New().WithData(ErrInvalidSample, struct {
		Field string
	}{
		Field: field,
	})
}
