package dsp

import "math"

// kEps matches the original engine's floor on log-energy, 2^-23.
const kEps = 1.1920928955078125e-07

func melScale(freq float64) float64 {
	return 1127.0 * math.Log(1.0+freq/700.0)
}

// generatePoveyWindow returns a length-n Povey window, w[i] = (0.5 -
// 0.5*cos(2*pi*i/n))^0.85.
func generatePoveyWindow(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		v := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
		w[i] = math.Pow(v, 0.85)
	}
	return w
}

func roundUpToNearestPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// generateBanks builds numBins triangular mel filters over numFFTBins FFT
// power-spectrum bins, with edges equispaced on the mel scale between
// melLow and melHigh (or Nyquist when melHigh is zero). Each bin's weight
// is interpolated in mel space (bin Hz converted to mel before comparing
// against the filter's left/centre/right mel points), matching
// generate_banks in the source this was ported from.
func generateBanks(numBins, numFFTBins int, sampleFreq, melLow, melHigh float64, paddedWindowSize int) [][]float64 {
	if melHigh <= 0 {
		melHigh = sampleFreq / 2
	}
	melLowPt := melScale(melLow)
	melHighPt := melScale(melHigh)
	step := (melHighPt - melLowPt) / float64(numBins+1)

	melPoints := make([]float64, numBins+2)
	for i := range melPoints {
		melPoints[i] = melLowPt + float64(i)*step
	}

	binHz := sampleFreq / float64(paddedWindowSize)

	banks := make([][]float64, numBins)
	for m := 0; m < numBins; m++ {
		left, center, right := melPoints[m], melPoints[m+1], melPoints[m+2]
		row := make([]float64, numFFTBins)
		for k := 0; k < numFFTBins; k++ {
			binMel := melScale(float64(k) * binHz)
			var weight float64
			switch {
			case binMel < left || binMel > right:
				weight = 0
			case binMel <= center:
				if center != left {
					weight = (binMel - left) / (center - left)
				}
			default:
				if right != center {
					weight = (right - binMel) / (right - center)
				}
			}
			row[k] = weight
		}
		banks[m] = row
	}
	return banks
}
