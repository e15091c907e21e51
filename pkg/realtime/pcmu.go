package realtime

import "encoding/binary"

// The local track is sent as G.711 mu-law at 8kHz, the narrowband codec every
// WebRTC peer accepts without negotiation surprises. The capture pipeline
// runs at 16kHz for segmentation quality, so frames are downsampled on the
// way out.

// downsample16to8 halves the sample rate of S16LE mono PCM by averaging
// adjacent sample pairs.
func downsample16to8(in []byte) []byte {
	inSamples := len(in) / 2
	outSamples := inSamples / 2
	out := make([]byte, outSamples*2)

	for i := 0; i < outSamples; i++ {
		s0 := int16(binary.LittleEndian.Uint16(in[i*4:]))
		s1 := int16(binary.LittleEndian.Uint16(in[i*4+2:]))
		avg := int16((int32(s0) + int32(s1)) / 2)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(avg))
	}
	return out
}

const muLawBias = 0x84

// encodeMuLaw converts S16LE PCM to G.711 mu-law.
func encodeMuLaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = muLawByte(sample)
	}
	return out
}

func muLawByte(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > 32635 {
		s = 32635
	}
	s += muLawBias

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (uint(exponent) + 3)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}
