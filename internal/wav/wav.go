// Package wav reads and writes RIFF/WAVE PCM files and in-memory preambles,
// restricted to the 16-bit mono 16 kHz format this system speaks throughout.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// SampleRate is the only sample rate this system accepts or produces.
	SampleRate = 16000
	// BitsPerSample is fixed at 16.
	BitsPerSample = 16
	// Channels is fixed at 1 (mono).
	Channels = 1
	// BytesPerFrame is the on-wire frame size: one int16 sample.
	BytesPerFrame = BitsPerSample / 8 * Channels

	formatPCM = 1
)

// Preamble builds a RIFF/WAVE header declaring PCM16 mono 16kHz with a data
// chunk size of dataBytes. The header size is always 44 bytes.
func Preamble(dataBytes uint32) []byte {
	buf := make([]byte, 44)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataBytes)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], SampleRate*BytesPerFrame)
	binary.LittleEndian.PutUint16(buf[32:34], BytesPerFrame)
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataBytes)
	return buf
}

// ReadFile loads a RIFF/WAVE file fully into memory, validating the format
// is PCM16 mono 16kHz. Any deviation is a hard error.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wav: open %s: %w", path, err)
	}
	defer f.Close()

	pcm, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("wav: %s: %w", path, err)
	}
	return pcm, nil
}

// Read parses a RIFF/WAVE stream and returns the raw PCM data bytes,
// validating format along the way. It walks chunks rather than assuming a
// fixed 44-byte header, so it tolerates extra chunks before "data".
func Read(r io.Reader) ([]byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("truncated RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var sawFormat bool
	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("truncated chunk header: %w", err)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("truncated chunk size: %w", err)
		}

		switch string(id[:]) {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("truncated fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, fmt.Errorf("fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != formatPCM {
				return nil, fmt.Errorf("unsupported wave format %d, only PCM is accepted", format)
			}
			if channels != Channels || bits != BitsPerSample || rate != SampleRate {
				return nil, fmt.Errorf("wrong format to play: channels=%d bits=%d rate=%d, need mono 16-bit 16kHz",
					channels, bits, rate)
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("truncated data chunk: %w", err)
			}
			return data, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("skipping unknown chunk %q: %w", id, err)
			}
		}
	}
}

// Writer writes a RIFF/WAVE file incrementally and back-patches the RIFF and
// data chunk sizes at Close.
type Writer struct {
	f           *os.File
	totalOffset int64
	dataOffset  int64
	written     int64
}

// Create opens path and writes the 44-byte PCM16 mono 16kHz header for an
// empty data chunk; Close back-patches both size fields.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", path, err)
	}

	header := Preamble(0)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: write header: %w", err)
	}

	return &Writer{
		f:           f,
		totalOffset: 4,
		dataOffset:  40,
	}, nil
}

// Write appends raw PCM bytes to the data chunk.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("wav: write data: %w", err)
	}
	return n, nil
}

// Close back-patches the RIFF size and data chunk size, then closes the file.
func (w *Writer) Close() error {
	defer w.f.Close()

	if _, err := w.f.Seek(w.totalOffset, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek riff size: %w", err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, uint32(36+w.written)); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	if _, err := w.f.Seek(w.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek data size: %w", err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, uint32(w.written)); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}
	return nil
}
