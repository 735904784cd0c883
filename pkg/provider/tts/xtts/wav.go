package xtts

import (
	"encoding/binary"
	"errors"
	"time"
)

// wavInfo holds the format fields extracted from a RIFF/WAVE header.
type wavInfo struct {
	sampleRate    int
	channels      int
	bitsPerSample int
	dataBytes     int
	duration      time.Duration
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// parseWAV walks the RIFF chunk list of data and returns format and duration
// information. Only the "fmt " and "data" chunks are inspected; all other
// chunks are skipped.
func parseWAV(data []byte) (*wavInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	info := &wavInfo{}
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, errors.New("truncated fmt chunk")
			}
			info.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			if body+chunkSize > len(data) {
				// Size field lies beyond the buffer; trust the actual bytes.
				chunkSize = len(data) - body
			}
			info.dataBytes = chunkSize
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	if info.sampleRate == 0 || info.channels == 0 || info.bitsPerSample == 0 {
		return nil, errors.New("missing fmt chunk")
	}
	if info.dataBytes == 0 {
		return nil, errors.New("missing data chunk")
	}

	bytesPerSecond := info.sampleRate * info.channels * info.bitsPerSample / 8
	info.duration = time.Duration(float64(info.dataBytes) / float64(bytesPerSecond) * float64(time.Second))
	return info, nil
}
