package led

import "math"

// EstimateCurrent returns estimated amps for an RGB frame, at 20mA per
// channel full scale.
func EstimateCurrent(rgb []byte) float64 {
	var sum float64
	for i := 0; i+2 < len(rgb); i += 3 {
		sum += float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
	}
	return sum / 255.0 * 0.020
}

// ApplyWhiteCap scales each LED so r+g+b <= whiteCap*3*255. A cap outside
// (0,1) disables the limiter.
func ApplyWhiteCap(rgb []byte, whiteCap float64) {
	if whiteCap <= 0 || whiteCap >= 1 {
		return
	}
	limit := whiteCap * 3.0 * 255.0
	for i := 0; i+2 < len(rgb); i += 3 {
		s := float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
		if s <= limit {
			continue
		}
		scale := limit / s
		rgb[i] = byte(math.Round(float64(rgb[i]) * scale))
		rgb[i+1] = byte(math.Round(float64(rgb[i+1]) * scale))
		rgb[i+2] = byte(math.Round(float64(rgb[i+2]) * scale))
	}
}

// Dim scales every channel by luminance/255, like the panel firmware does.
func Dim(rgb []byte, luminance uint8) {
	if luminance == 255 {
		return
	}
	for i, v := range rgb {
		rgb[i] = byte(uint16(v) * uint16(luminance) / 255)
	}
}

// ApplyBudget scales the whole frame so EstimateCurrent stays under
// limitAmps. Between knee*limit and limit the scale eases in; above the
// limit it is exact. A non-positive limit disables it.
func ApplyBudget(rgb []byte, limitAmps, knee float64) {
	if limitAmps <= 0 {
		return
	}
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}
	total := EstimateCurrent(rgb)
	if total <= 0 {
		return
	}
	ratio := total / limitAmps
	if ratio <= knee {
		return
	}
	s := limitAmps / total
	if ratio <= 1 {
		t := (ratio - knee) / (1 - knee)
		s = 1 - t*(1-s)
	}
	if s >= 1 {
		return
	}
	for i, v := range rgb {
		rgb[i] = byte(math.Floor(float64(v) * s))
	}
}
