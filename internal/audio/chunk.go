package audio

import (
	"encoding/binary"
)

// fallbackPieces is how many equal slices undecodable audio is cut into
const fallbackPieces = 4

// Chunk splits audio into pieces of chunkMs duration.
//
// WAV input is cut on frame boundaries and every piece is re-wrapped in its
// own header so it plays on its own. Headerless input is treated as PCM in the
// raw format. When neither applies the bytes are cut into four equal slices.
func Chunk(b []byte, chunkMs int, raw Format) [][]byte {
	if len(b) == 0 {
		return nil
	}

	if IsWAV(b) {
		if wav, err := ParseWAV(b); err == nil {
			pieces := splitFrames(wav.Data, wav.Format, chunkMs)
			chunks := make([][]byte, 0, len(pieces))
			for _, p := range pieces {
				chunks = append(chunks, EncodeWAV(p, wav.Format))
			}
			return chunks
		}
		return splitEven(b, fallbackPieces)
	}

	if raw.SampleRate > 0 && raw.Channels > 0 && raw.BitsPerSample > 0 {
		return splitFrames(b, raw, chunkMs)
	}
	return splitEven(b, fallbackPieces)
}

func splitFrames(data []byte, format Format, chunkMs int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if chunkMs <= 0 {
		return [][]byte{data}
	}

	align := format.BlockAlign()
	size := int(format.BytesPerMillisecond() * float64(chunkMs))
	size -= size % align
	if size < align {
		size = align
	}

	chunks := make([][]byte, 0, len(data)/size+1)
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

func splitEven(b []byte, pieces int) [][]byte {
	size := len(b) / pieces
	if size == 0 {
		return [][]byte{b}
	}
	chunks := make([][]byte, 0, pieces+1)
	for i := 0; i < len(b); i += size {
		end := i + size
		if end > len(b) {
			end = len(b)
		}
		chunks = append(chunks, b[i:end])
	}
	return chunks
}

// Normalize downmixes 16-bit PCM WAV input to mono. Anything else is returned
// unchanged; resampling is left to the recognisers, which accept the
// sample rate in the header.
func Normalize(b []byte) []byte {
	wav, err := ParseWAV(b)
	if err != nil || wav.Format.Channels == 1 || wav.Format.BitsPerSample != 16 {
		return b
	}

	channels := wav.Format.Channels
	frameSize := wav.Format.BlockAlign()
	frames := len(wav.Data) / frameSize
	mono := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			off := i*frameSize + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(wav.Data[off : off+2])))
		}
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16(sum/channels)))
	}

	return EncodeWAV(mono, Format{SampleRate: wav.Format.SampleRate, Channels: 1, BitsPerSample: 16})
}

// Duration returns the playback length of WAV input in milliseconds, or zero
// when it cannot be determined.
func Duration(b []byte) int64 {
	wav, err := ParseWAV(b)
	if err != nil {
		return 0
	}
	perMs := wav.Format.BytesPerMillisecond()
	if perMs == 0 {
		return 0
	}
	return int64(float64(len(wav.Data)) / perMs)
}
