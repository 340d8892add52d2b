// Package resample converts mono float32 audio from a device's native rate to
// the pipeline's fixed target rate in fixed-size output frames.
//
// The converter is block oriented. At construction the rate pair is reduced
// by its greatest common divisor to a fixed FFT input block and a fixed FFT
// output block of equal duration. Each input block is low-pass filtered and
// band-limited in the frequency domain, transformed back at the output
// block's length and overlap-added onto the previous block's tail. Output
// blocks accumulate in a carry buffer so every [Resampler.Process] call
// yields exactly the configured number of output samples, while the number
// of input samples it consumes varies and is reported ahead of time by
// [Resampler.InputFramesRequired].
//
// When the native rate equals the target rate the converter degenerates to a
// copy.
package resample

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// minOutBlock is the smallest FFT output block; shorter gcd-reduced
	// blocks are scaled up to at least this length.
	minOutBlock = 160

	// maxInBlock bounds the FFT input block for coprime rate pairs.
	maxInBlock = 1 << 17

	// maxTaps bounds the low-pass filter length.
	maxTaps = 511

	// cutoffScale places the filter's cutoff below the lower Nyquist
	// frequency to leave room for the transition band.
	cutoffScale = 0.9
)

// BlockSizeError reports a call to [Resampler.Process] with an input or
// output slice of the wrong length. It is raised as a panic value: supplying
// a different count than [Resampler.InputFramesRequired] is a programming
// error, not a runtime condition.
type BlockSizeError struct {
	Input bool // true for the input slice, false for the output slice
	Got   int
	Want  int
}

func (e *BlockSizeError) Error() string {
	which := "output"
	if e.Input {
		which = "input"
	}
	return fmt.Sprintf("resample: %s block has %d samples, want %d", which, e.Got, e.Want)
}

// Resampler converts one fixed-size output frame per call. It is not safe for
// concurrent use.
type Resampler struct {
	inRate, outRate int
	outFrames       int
	identity        bool

	// fftIn and fftOut are the per-block sample counts at the input and
	// output rate; fftIn/fftOut == inRate/outRate.
	fftIn, fftOut int

	fwd    *fourier.FFT // length 2*fftIn
	inv    *fourier.FFT // length 2*fftOut
	filter []complex128 // fwd spectrum of the low-pass kernel
	scale  float64

	timeIn  []float64
	specIn  []complex128
	specOut []complex128
	timeOut []float64
	overlap []float64

	carry    []float32
	required int
}

// New builds a converter from inRate to outRate that produces outFrames
// samples per call.
func New(inRate, outRate, outFrames int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("resample: rates must be positive, got %d -> %d", inRate, outRate)
	}
	if outFrames <= 0 {
		return nil, fmt.Errorf("resample: output frame count must be positive, got %d", outFrames)
	}

	r := &Resampler{
		inRate:    inRate,
		outRate:   outRate,
		outFrames: outFrames,
	}
	if inRate == outRate {
		r.identity = true
		r.required = outFrames
		return r, nil
	}

	g := gcd(inRate, outRate)
	bIn, bOut := inRate/g, outRate/g
	k := (minOutBlock + bOut - 1) / bOut
	r.fftIn, r.fftOut = bIn*k, bOut*k
	if r.fftIn > maxInBlock {
		return nil, fmt.Errorf("resample: %d Hz -> %d Hz needs an input block of %d samples (max %d)",
			inRate, outRate, r.fftIn, maxInBlock)
	}

	n, m := 2*r.fftIn, 2*r.fftOut
	r.fwd = fourier.NewFFT(n)
	r.inv = fourier.NewFFT(m)
	r.scale = 1 / float64(n)

	r.timeIn = make([]float64, n)
	r.specIn = make([]complex128, n/2+1)
	r.specOut = make([]complex128, m/2+1)
	r.timeOut = make([]float64, m)
	r.overlap = make([]float64, r.fftOut)
	r.carry = make([]float32, 0, outFrames+r.fftOut)

	kernel := make([]float64, n)
	lowpass(kernel[:r.taps()], cutoffScale*0.5*float64(min(inRate, outRate))/float64(inRate))
	r.filter = r.fwd.Coefficients(nil, kernel)

	r.required = r.inputFor(0)
	return r, nil
}

// InRate returns the native input rate.
func (r *Resampler) InRate() int { return r.inRate }

// OutRate returns the target output rate.
func (r *Resampler) OutRate() int { return r.outRate }

// OutFrames returns the number of samples produced by every Process call.
func (r *Resampler) OutFrames() int { return r.outFrames }

// InputFramesRequired returns the exact number of input samples the next
// Process call consumes. It may be zero when enough output is already
// carried over from earlier blocks.
func (r *Resampler) InputFramesRequired() int { return r.required }

// MaxInputFrames returns the largest value InputFramesRequired can take.
func (r *Resampler) MaxInputFrames() int {
	if r.identity {
		return r.outFrames
	}
	return r.inputFor(0)
}

// Process converts exactly InputFramesRequired samples from in into exactly
// OutFrames samples in out. Any other length panics with *BlockSizeError.
func (r *Resampler) Process(in, out []float32) {
	if len(in) != r.required {
		panic(&BlockSizeError{Input: true, Got: len(in), Want: r.required})
	}
	if len(out) != r.outFrames {
		panic(&BlockSizeError{Got: len(out), Want: r.outFrames})
	}
	if r.identity {
		copy(out, in)
		return
	}

	for off := 0; off < len(in); off += r.fftIn {
		r.block(in[off : off+r.fftIn])
	}
	copy(out, r.carry[:r.outFrames])
	r.carry = r.carry[:copy(r.carry, r.carry[r.outFrames:])]
	r.required = r.inputFor(len(r.carry))
}

// block filters one input block and appends fftOut samples to the carry.
func (r *Resampler) block(in []float32) {
	for i, s := range in {
		r.timeIn[i] = float64(s)
	}
	clear(r.timeIn[len(in):])

	r.fwd.Coefficients(r.specIn, r.timeIn)

	bins := min(len(r.specIn), len(r.specOut))
	for i := range bins {
		r.specOut[i] = r.specIn[i] * r.filter[i]
	}
	clear(r.specOut[bins:])

	r.inv.Sequence(r.timeOut, r.specOut)

	for i := range r.fftOut {
		r.carry = append(r.carry, float32(r.timeOut[i]*r.scale+r.overlap[i]))
		r.overlap[i] = r.timeOut[r.fftOut+i] * r.scale
	}
}

// inputFor returns the input needed to complete a frame when carried output
// samples are already pending.
func (r *Resampler) inputFor(carried int) int {
	need := r.outFrames - carried
	if need <= 0 {
		return 0
	}
	return (need + r.fftOut - 1) / r.fftOut * r.fftIn
}

// taps returns an odd filter length that keeps the linear convolution of one
// input block within the FFT length.
func (r *Resampler) taps() int {
	t := min(r.fftIn+1, maxTaps)
	if t%2 == 0 {
		t--
	}
	return t
}

// lowpass fills h with a Blackman-windowed sinc with the given cutoff in
// cycles per sample, normalised to unit DC gain.
func lowpass(h []float64, cutoff float64) {
	n := len(h)
	if n == 1 {
		h[0] = 1
		return
	}
	mid := float64(n-1) / 2
	var sum float64
	for i := range h {
		x := float64(i) - mid
		v := 2 * cutoff
		if x != 0 {
			v = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) + 0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		h[i] = v * w
		sum += h[i]
	}
	for i := range h {
		h[i] /= sum
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
