package output

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{BackendNull, BackendPortAudio, BackendSpeaker}, Backends())
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    audio.Format
		wantErr error
	}{
		{name: "null", backend: BackendNull, want: audio.Canonical(44100)},
		{name: "case insensitive", backend: "NULL", want: audio.Canonical(48000)},
		{name: "unknown backend", backend: "alsa", want: audio.Canonical(44100), wantErr: ErrUnknownBackend},
		{
			name:    "non canonical format",
			backend: BackendNull,
			want:    audio.Format{SampleRate: 44100, Channels: 1, SampleFormat: audio.SampleFormatS16},
			wantErr: ErrUnsupportedData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := Open(tt.backend, DefaultDevice, tt.want)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			defer sink.Close()
			assert.Equal(t, tt.want, sink.Format())
		})
	}
}

func TestNullSink(t *testing.T) {
	s := NewNull(audio.Canonical(44100))

	require.NoError(t, s.Write(make([]byte, 4096)))
	require.NoError(t, s.Write(nil))
	assert.True(t, errors.Is(s.Write(make([]byte, 3)), ErrUnsupportedData))
	assert.Equal(t, int64(4096), s.Written())

	require.NoError(t, s.Flush())
	assert.Equal(t, int64(1), s.Flushes())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Write(make([]byte, 4)), ErrClosed))
	assert.True(t, errors.Is(s.Flush(), ErrClosed))
}

func TestDevices_Null(t *testing.T) {
	devs, err := Devices(BackendNull)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.True(t, devs[0].Default)

	_, err = Devices("nope")
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestPCMHelpers(t *testing.T) {
	data := make([]byte, 9)
	binary.LittleEndian.PutUint16(data[0:], uint16(16384))
	binary.LittleEndian.PutUint16(data[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint16(data[4:], uint16(1))
	binary.LittleEndian.PutUint16(data[6:], uint16(2))

	got := appendS16([]int16{7}, data)
	assert.Equal(t, []int16{7, 16384, -32768, 1, 2}, got)

	stereo := s16ToStereo(data[:8])
	require.Len(t, stereo, 2)
	assert.Equal(t, [2]float64{0.5, -1}, stereo[0])

	assert.True(t, isDefaultDevice(""))
	assert.True(t, isDefaultDevice("Default"))
	assert.False(t, isDefaultDevice("USB DAC"))
}
