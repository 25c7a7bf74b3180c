package httpapi

import (
	"encoding/binary"
	"net/http"
	"time"
)

// Engines emit 16-bit little-endian mono PCM at this rate.
const (
	pcmSampleRate    = 24000
	pcmBitsPerSample = 16
	pcmChannels      = 1
)

// wavStreamSize marks RIFF and data lengths as unknown while streaming.
const wavStreamSize = 0xFFFFFFFF

// wavHeader returns a canonical 44-byte header for dataLen bytes of PCM.
func wavHeader(dataLen uint32) []byte {
	riff := dataLen
	if riff != wavStreamSize {
		riff += 36
	}
	blockAlign := pcmChannels * pcmBitsPerSample / 8
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], riff)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], pcmChannels)
	binary.LittleEndian.PutUint32(h[24:], pcmSampleRate)
	binary.LittleEndian.PutUint32(h[28:], uint32(pcmSampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], pcmBitsPerSample)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], dataLen)
	return h
}

func contentTypeFor(format string) string {
	if format == "wav" {
		return "audio/wav"
	}
	return "application/octet-stream"
}

// audioWriter sets the audio headers on the first chunk so errors before any
// audio can still be reported as JSON.
type audioWriter struct {
	w           http.ResponseWriter
	contentType string
	// prefix is written ahead of the first chunk.
	prefix    []byte
	start     time.Time
	firstByte time.Duration
	written   int64
	audio     int64
}

func (a *audioWriter) Write(p []byte) (int, error) {
	if a.written == 0 {
		a.firstByte = time.Since(a.start)
		ct := a.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		a.w.Header().Set("Content-Type", ct)
		a.w.WriteHeader(http.StatusOK)
		if len(a.prefix) > 0 {
			n, err := a.w.Write(a.prefix)
			a.written += int64(n)
			if err != nil {
				return 0, err
			}
		}
	}
	n, err := a.w.Write(p)
	a.written += int64(n)
	a.audio += int64(n)
	return n, err
}
