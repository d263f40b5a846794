// Package audio holds the small amount of PCM/WAV handling the pipeline needs:
// header parsing, duration-based chunking and mono downmixing.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	wavHeaderSize = 44
	formatPCM     = 1
)

// ErrNotWAV is returned when bytes do not start with a RIFF/WAVE header
var ErrNotWAV = errors.New("not a WAV stream")

// Format describes interleaved PCM audio
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BlockAlign is the size in bytes of one frame (one sample per channel)
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerMillisecond is the PCM byte rate divided by 1000
func (f Format) BytesPerMillisecond() float64 {
	return float64(f.SampleRate*f.BlockAlign()) / 1000
}

// WAV is a parsed PCM WAV stream
type WAV struct {
	Format Format
	Data   []byte
}

// IsWAV reports whether b starts with a RIFF/WAVE header
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// ParseWAV walks the RIFF chunks and returns the PCM format and data.
// Only uncompressed PCM is supported.
func ParseWAV(b []byte) (*WAV, error) {
	if !IsWAV(b) {
		return nil, ErrNotWAV
	}

	var format *Format
	offset := 12
	for offset+8 <= len(b) {
		id := string(b[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(b) || size < 0 {
			// Streams written before their length was known report a bogus size.
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", end-body)
			}
			if audioFormat := binary.LittleEndian.Uint16(b[body : body+2]); audioFormat != formatPCM {
				return nil, fmt.Errorf("unsupported WAV format %d", audioFormat)
			}
			format = &Format{
				Channels:      int(binary.LittleEndian.Uint16(b[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(b[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(b[body+14 : body+16])),
			}
			if format.Channels <= 0 || format.SampleRate <= 0 || format.BitsPerSample <= 0 || format.BitsPerSample%8 != 0 {
				return nil, fmt.Errorf("invalid WAV format %+v", *format)
			}
		case "data":
			if format == nil {
				return nil, errors.New("data chunk before fmt chunk")
			}
			return &WAV{Format: *format, Data: b[body:end]}, nil
		}

		// Chunks are word aligned.
		offset = end + size%2
	}

	return nil, errors.New("WAV stream has no data chunk")
}

// EncodeWAV wraps PCM data in a canonical 44-byte header
func EncodeWAV(pcm []byte, format Format) []byte {
	dataLen := len(pcm)
	header := make([]byte, wavHeaderSize, wavHeaderSize+dataLen)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(format.SampleRate*format.BlockAlign()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(format.BlockAlign()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(format.BitsPerSample))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	return append(header, pcm...)
}

// IsAudioContentType reports whether a MIME type names audio
func IsAudioContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "audio/")
}
