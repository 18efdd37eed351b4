package media

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// oggPage builds a page with the given lacing values. The checksum is left zero.
func oggPage(flags byte, granule int64, serial, seq uint32, lacing []byte, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("OggS")
	buf.WriteByte(0)
	buf.WriteByte(flags)
	_ = binary.Write(buf, binary.LittleEndian, granule)
	_ = binary.Write(buf, binary.LittleEndian, serial)
	_ = binary.Write(buf, binary.LittleEndian, seq)
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.WriteByte(byte(len(lacing)))
	buf.Write(lacing)
	buf.Write(body)
	return buf.Bytes()
}

func opusHead(channels byte, preSkip uint16) []byte {
	head := []byte("OpusHead")
	head = append(head, 1, channels)
	head = binary.LittleEndian.AppendUint16(head, preSkip)
	head = binary.LittleEndian.AppendUint32(head, 48000)
	head = append(head, 0, 0, 0)
	return head
}

func vorbisIdent(channels byte, rate, nominal uint32) []byte {
	id := []byte{0x01, 'v', 'o', 'r', 'b', 'i', 's', 0, 0, 0, 0, channels}
	id = binary.LittleEndian.AppendUint32(id, rate)
	id = binary.LittleEndian.AppendUint32(id, 0)
	id = binary.LittleEndian.AppendUint32(id, nominal)
	id = binary.LittleEndian.AppendUint32(id, 0)
	id = append(id, 0xb8, 0x01)
	return id
}

func TestOggDemuxer_Packets(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, 255)
	tail := bytes.Repeat([]byte{'y'}, 10)

	var file []byte
	file = append(file, oggPage(oggFlagBOS, 0, 7, 0, []byte{3, 2}, []byte("abcde"))...)
	page2 := len(file)
	file = append(file, oggPage(0, -1, 7, 1, []byte{255}, big)...)
	page3 := len(file)
	file = append(file, oggPage(oggFlagContinued, 100, 7, 2, []byte{10}, tail)...)
	file = append(file, oggPage(oggFlagEOS, 200, 7, 3, []byte{4}, []byte("last"))...)

	d := newOggDemuxer(bytes.NewReader(file))

	p, err := d.next()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p.data))
	assert.Equal(t, int64(-1), p.startGranule)

	p, err = d.next()
	require.NoError(t, err)
	assert.Equal(t, "de", string(p.data))

	p, err = d.next()
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, big...), tail...), p.data)
	assert.Equal(t, int64(0), p.startGranule)
	assert.Equal(t, int64(page3+27+1+10), d.offset)

	p, err = d.next()
	require.NoError(t, err)
	assert.Equal(t, "last", string(p.data))
	assert.Equal(t, int64(100), p.startGranule)

	_, err = d.next()
	assert.True(t, errors.Is(err, io.EOF))

	t.Run("continued page after reset is dropped", func(t *testing.T) {
		require.NoError(t, d.reset(int64(page3), map[uint32]int64{7: 0}))
		p, err := d.next()
		require.NoError(t, err)
		assert.Equal(t, "last", string(p.data))
	})

	t.Run("spanning packet after reset", func(t *testing.T) {
		require.NoError(t, d.reset(int64(page2), nil))
		p, err := d.next()
		require.NoError(t, err)
		assert.Len(t, p.data, 265)
	})
}

func TestOggDemuxer_Interleaved(t *testing.T) {
	var file []byte
	file = append(file, oggPage(oggFlagBOS, 0, 1, 0, []byte{1}, []byte("a"))...)
	file = append(file, oggPage(oggFlagBOS, 0, 2, 0, []byte{1}, []byte("b"))...)
	file = append(file, oggPage(0, 10, 1, 1, []byte{2}, []byte("a1"))...)
	file = append(file, oggPage(0, 20, 2, 1, []byte{2}, []byte("b1"))...)

	d := newOggDemuxer(bytes.NewReader(file))
	var got []string
	for {
		p, err := d.next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, string(p.data))
	}
	assert.Equal(t, []string{"a", "b", "a1", "b1"}, got)
}

func TestParseOggPageHeader_Invalid(t *testing.T) {
	_, err := parseOggPageHeader(bytes.NewReader(append([]byte("OggX"), make([]byte, 23)...)))
	assert.True(t, errors.Is(err, errInvalidOggMagic))

	page := oggPage(0, 0, 1, 0, nil, nil)
	page[4] = 1
	_, err = parseOggPageHeader(bytes.NewReader(page))
	assert.True(t, errors.Is(err, errInvalidOggVersion))
}

func TestLastGranules(t *testing.T) {
	var file []byte
	file = append(file, oggPage(oggFlagBOS, 0, 1, 0, []byte{1}, []byte("a"))...)
	file = append(file, oggPage(0, 480, 1, 1, []byte{1}, []byte("b"))...)
	file = append(file, oggPage(0, -1, 2, 1, []byte{1}, []byte("c"))...)
	file = append(file, oggPage(oggFlagEOS, 960, 1, 2, []byte{1}, []byte("d"))...)

	got, err := lastGranules(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, map[uint32]int64{1: 960}, got)
}

func TestOggStreamKind(t *testing.T) {
	tests := []struct {
		name  string
		first []byte
		kind  audio.MediaType
		codec string
	}{
		{name: "opus", first: opusHead(2, 312), kind: audio.MediaAudio, codec: "opus"},
		{name: "vorbis", first: vorbisIdent(2, 44100, 128000), kind: audio.MediaAudio, codec: "vorbis"},
		{name: "theora", first: []byte("\x80theora...."), kind: audio.MediaVideo, codec: "theora"},
		{name: "skeleton", first: []byte("fishead\x00...."), kind: audio.MediaData, codec: "skeleton"},
		{name: "garbage", first: []byte("??"), kind: audio.MediaUnknown, codec: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, codec, _ := oggStreamKind(tt.first)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.codec, codec)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	channels, rate, nominal, err := parseVorbisIdent(vorbisIdent(1, 22050, 96000))
	require.NoError(t, err)
	assert.Equal(t, 1, channels)
	assert.Equal(t, 22050, rate)
	assert.Equal(t, 96000, nominal)

	_, _, _, err = parseVorbisIdent([]byte{0x01})
	assert.True(t, errors.Is(err, errInvalidVorbisHeader))

	channels, preSkip, err := parseOpusHead(opusHead(2, 312))
	require.NoError(t, err)
	assert.Equal(t, 2, channels)
	assert.Equal(t, 312, preSkip)

	bad := opusHead(2, 312)
	bad[8] = 2
	_, _, err = parseOpusHead(bad)
	assert.True(t, errors.Is(err, errUnsupportedOpus))
}

func TestOgg_ReadInfo(t *testing.T) {
	var file []byte
	file = append(file, oggPage(oggFlagBOS, 0, 11, 0, []byte{11}, []byte("\x80theora...."))...)
	head := opusHead(2, 312)
	file = append(file, oggPage(oggFlagBOS, 0, 22, 0, []byte{byte(len(head))}, head)...)
	file = append(file, oggPage(0, 0, 22, 1, []byte{8}, []byte("OpusTags"))...)
	file = append(file, oggPage(oggFlagEOS, 48312, 22, 2, []byte{3}, []byte{0xfc, 0xff, 0xfe})...)

	path := filepath.Join(t.TempDir(), "clip.ogg")
	require.NoError(t, os.WriteFile(path, file, 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, "ogg", info.Format)
	assert.Equal(t, time.Second, info.Duration)
	require.Len(t, info.Streams, 2)

	assert.Equal(t, audio.MediaVideo, info.Streams[0].Type)
	assert.Equal(t, "theora", info.Streams[0].Codec)

	opus := info.Streams[1]
	assert.Equal(t, audio.MediaAudio, opus.Type)
	assert.Equal(t, "opus", opus.Codec)
	assert.Equal(t, 48000, opus.SampleRate)
	assert.Equal(t, 2, opus.Channels)
	assert.Equal(t, time.Second, opus.Duration)

	assert.True(t, errors.Is(src.OpenDecoder(0), ErrUnsupportedCodec))
}

func TestOgg_NotOgg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.ogg")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}
