package wav

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreambleFields(t *testing.T) {
	hdr := Preamble(3200)
	require.Len(t, hdr, 44)
	assert.Equal(t, "RIFF", string(hdr[0:4]))
	assert.Equal(t, "WAVE", string(hdr[8:12]))
	assert.Equal(t, "data", string(hdr[36:40]))
}

func TestReadAcceptsMatchingPreamble(t *testing.T) {
	data := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	hdr := Preamble(uint32(len(data)))
	pcm, err := Read(bytes.NewReader(append(hdr, data...)))
	require.NoError(t, err)
	assert.Equal(t, data, pcm)
}

func TestReadRejectsWrongRate(t *testing.T) {
	hdr := Preamble(0)
	hdr[24] = 0x00
	hdr[25] = 0x7d // mangled sample rate
	_, err := Read(bytes.NewReader(hdr))
	assert.Error(t, err)
}

func TestReadRejectsStereo(t *testing.T) {
	hdr := Preamble(0)
	hdr[22] = 2 // channels = 2
	_, err := Read(bytes.NewReader(hdr))
	assert.Error(t, err)
}

func TestWriterBackPatchesSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	w, err := Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	pcm, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, pcm)
}
