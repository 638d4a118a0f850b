package audio

/*
AudioSocket carries signed linear 16-bit mono PCM at 8kHz.
- audiosocket.DefaultSlinChunkSize = 320 bytes = 8000Hz × 20ms × 2 bytes
- Always send with audiosocket.SendSlinChunks, never custom chunking.
Recordings are written with the same format so they can be replayed as-is.
*/

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	SampleRate     = 8000
	BitsPerSample  = 16
	Channels       = 1
	wavHeaderBytes = 44
)

// WAVWriter streams PCM into a WAV file and fixes up the header on Close.
type WAVWriter struct {
	file       *os.File
	sampleRate int
	written    int64
}

// CreateWAV creates path and its directory, writing a placeholder header.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &WAVWriter{file: f, sampleRate: sampleRate}
	if _, err := f.Write(wavHeader(sampleRate, 0)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	return w, nil
}

func (w *WAVWriter) Write(pcm []byte) (int, error) {
	n, err := w.file.Write(pcm)
	w.written += int64(n)
	return n, err
}

// DataBytes is the number of PCM bytes written so far.
func (w *WAVWriter) DataBytes() int64 { return w.written }

// Close patches the RIFF and data sizes and closes the file.
func (w *WAVWriter) Close() error {
	if w.file == nil {
		return nil
	}
	defer func() { w.file = nil }()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("seek WAV header: %w", err)
	}
	if _, err := w.file.Write(wavHeader(w.sampleRate, uint32(w.written))); err != nil {
		w.file.Close()
		return fmt.Errorf("finalize WAV header: %w", err)
	}
	return w.file.Close()
}

func wavHeader(sampleRate int, dataLen uint32) []byte {
	byteRate := uint32(sampleRate * Channels * BitsPerSample / 8)
	blockAlign := uint16(Channels * BitsPerSample / 8)

	h := make([]byte, wavHeaderBytes)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], Channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], BitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// ReadWAV returns the PCM payload of a WAV file and its sample rate.
func ReadWAV(path string) ([]byte, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(file, header); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	// Walk the chunks until data; fmt gives the sample rate.
	sampleRate := SampleRate
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(file, chunk); err != nil {
			return nil, 0, fmt.Errorf("WAV data chunk not found: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(file, body); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(body) >= 8 {
				sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			}
		case "data":
			pcm, err := io.ReadAll(io.LimitReader(file, size))
			if err != nil {
				return nil, 0, err
			}
			return pcm, sampleRate, nil
		default:
			if _, err := file.Seek(size, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

// Resample converts 16-bit mono PCM between sample rates by linear interpolation.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < 2 {
		return pcm
	}
	in := len(pcm) / 2
	out := int(int64(in) * int64(to) / int64(from))
	result := make([]byte, out*2)
	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	for i := 0; i < out; i++ {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		v := sample(j)
		if j+1 < in {
			frac := pos - float64(j)
			v += (sample(j+1) - v) * frac
		}
		binary.LittleEndian.PutUint16(result[i*2:], uint16(int16(v)))
	}
	return result
}
