package audio

import (
	"encoding/binary"
	"math"
)

// Energy computes the normalized root-mean-square energy of 16-bit signed
// little-endian PCM audio. The result is in [0,1], with 1 corresponding to a
// full-scale signal.
func Energy(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	numSamples := len(pcm) / 2
	var sumSquares float64

	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sumSquares += float64(sample) * float64(sample)
	}

	return math.Sqrt(sumSquares/float64(numSamples)) / 32768.0
}
