package speech

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spaghettifunk/marionette/engine/core"
)

// WAVDuration reads the play length of a RIFF/WAVE buffer from its fmt and
// data chunks.
func WAVDuration(audio []byte) (time.Duration, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: not a WAV buffer", core.ErrAudioPlayback)
	}

	var byteRate uint32
	for off := 12; off+8 <= len(audio); {
		id := string(audio[off : off+4])
		size := int(binary.LittleEndian.Uint32(audio[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(audio) {
				return 0, fmt.Errorf("%w: short fmt chunk", core.ErrAudioPlayback)
			}
			byteRate = binary.LittleEndian.Uint32(audio[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%w: data before fmt chunk", core.ErrAudioPlayback)
			}
			// streamed WAVs leave the size at its maximum
			if body+size > len(audio) || size < 0 {
				size = len(audio) - body
			}
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
		}
		// chunks are padded to an even size
		off = body + size + size%2
	}
	return 0, fmt.Errorf("%w: no data chunk", core.ErrAudioPlayback)
}

// NewWAV builds a silent 16-bit mono WAV of the given length.
func NewWAV(sampleRate int, d time.Duration) []byte {
	const channels, bits = 1, 16
	blockAlign := channels * bits / 8
	dataSize := int(d.Seconds()*float64(sampleRate)) * blockAlign

	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bits)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	return out
}
