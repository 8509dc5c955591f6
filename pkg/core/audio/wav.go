package audio

import "encoding/binary"

// PCMToWAV wraps raw 16-bit little-endian PCM in a WAV container so the
// mixed session blob can be stored and played back directly.
func PCMToWAV(pcm []byte, config Config) []byte {
	dataLen := len(pcm)
	byteRate := config.SampleRate * config.Channels * config.BitsPerSample / 8
	blockAlign := config.Channels * config.BitsPerSample / 8

	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(config.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(config.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(config.BitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], pcm)

	return buf
}
