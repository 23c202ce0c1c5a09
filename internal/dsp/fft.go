package dsp

import "math"

// powerSpectrum returns |FFT(frame)|^2 for the first half of the spectrum
// (bins [0, len(frame)/2)), which is all the mel projection needs. The FFT
// primitive itself is an external collaborator per the engine's design
// (see SPEC_FULL.md); this is a small self-contained implementation so the
// package has no undeclared dependency on a production FFT kernel.
func powerSpectrum(frame []float64) []float64 {
	n := len(frame)
	spectrum := fft(frame)
	half := n / 2
	out := make([]float64, half)
	for k := 0; k < half; k++ {
		re, im := real(spectrum[k]), imag(spectrum[k])
		out[k] = re*re + im*im
	}
	return out
}

type complex128Slice = []complex128

// fft dispatches to a radix-2 Cooley-Tukey transform when n is a power of
// two (the common case, since round_pow2 defaults true) and falls back to
// a direct O(n^2) DFT otherwise.
func fft(real64 []float64) complex128Slice {
	n := len(real64)
	in := make([]complex128, n)
	for i, v := range real64 {
		in[i] = complex(v, 0)
	}
	if n&(n-1) == 0 && n > 0 {
		return fftRadix2(in)
	}
	return dft(in)
}

func dft(in []complex128) []complex128 {
	n := len(in)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += in[t] * complex(math.Cos(angle), math.Sin(angle))
		}
		out[k] = sum
	}
	return out
}

func fftRadix2(in []complex128) []complex128 {
	n := len(in)
	if n == 1 {
		return in
	}
	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = in[2*i]
		odd[i] = in[2*i+1]
	}
	even = fftRadix2(even)
	odd = fftRadix2(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		twiddle := complex(math.Cos(angle), math.Sin(angle)) * odd[k]
		out[k] = even[k] + twiddle
		out[k+n/2] = even[k] - twiddle
	}
	return out
}
