package media

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	errInvalidOggMagic   = errors.New("ogg: invalid capture pattern")
	errInvalidOggVersion = errors.New("ogg: unsupported version")
)

const (
	oggHeaderSize    = 27
	oggFlagContinued = 0x01
	oggFlagBOS       = 0x02
	oggFlagEOS       = 0x04
)

// oggPageHeader represents the header of an Ogg page.
type oggPageHeader struct {
	Flags        byte
	GranulePos   int64
	SerialNumber uint32
	SequenceNum  uint32
	SegmentTable []uint8
}

func (h *oggPageHeader) size() int64 {
	return int64(oggHeaderSize + len(h.SegmentTable))
}

func (h *oggPageHeader) bodySize() int64 {
	var n int64
	for _, l := range h.SegmentTable {
		n += int64(l)
	}
	return n
}

// parseOggPageHeader reads and parses an Ogg page header from the reader.
func parseOggPageHeader(r io.Reader) (*oggPageHeader, error) {
	var buf [oggHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	if string(buf[0:4]) != "OggS" {
		return nil, errInvalidOggMagic
	}
	if buf[4] != 0 {
		return nil, errInvalidOggVersion
	}

	hdr := &oggPageHeader{
		Flags:        buf[5],
		GranulePos:   int64(binary.LittleEndian.Uint64(buf[6:14])),
		SerialNumber: binary.LittleEndian.Uint32(buf[14:18]),
		SequenceNum:  binary.LittleEndian.Uint32(buf[18:22]),
		// checksum at buf[22:26] is not verified
	}
	if n := int(buf[26]); n > 0 {
		hdr.SegmentTable = make([]uint8, n)
		if _, err := io.ReadFull(r, hdr.SegmentTable); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}

// oggPacket is one reassembled logical-stream packet.
type oggPacket struct {
	serial uint32
	data   []byte
	// granule of the page preceding the one that completed this packet,
	// -1 when no earlier page of the stream carried a granule.
	startGranule int64
}

// oggDemuxer reassembles packets from pages of all logical streams in a file.
type oggDemuxer struct {
	r       io.ReadSeeker
	offset  int64 // offset of the next page header
	partial map[uint32][]byte
	granule map[uint32]int64
	queue   []oggPacket
}

func newOggDemuxer(r io.ReadSeeker) *oggDemuxer {
	return &oggDemuxer{
		r:       r,
		partial: make(map[uint32][]byte),
		granule: make(map[uint32]int64),
	}
}

// reset moves to the page starting at offset and drops reassembly state.
// granules seeds the per-stream granule used for timestamps.
func (d *oggDemuxer) reset(offset int64, granules map[uint32]int64) error {
	if _, err := d.r.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "ogg: failed to seek")
	}
	d.offset = offset
	d.partial = make(map[uint32][]byte)
	d.granule = make(map[uint32]int64)
	for k, v := range granules {
		d.granule[k] = v
	}
	d.queue = nil
	return nil
}

// readPage reads the next page header and body.
func (d *oggDemuxer) readPage() (*oggPageHeader, []byte, error) {
	hdr, err := parseOggPageHeader(d.r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, err
	}
	body := make([]byte, hdr.bodySize())
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, err
	}
	d.offset += hdr.size() + int64(len(body))
	return hdr, body, nil
}

// skipPage reads the next page header and seeks past its body.
func (d *oggDemuxer) skipPage() (*oggPageHeader, int64, error) {
	start := d.offset
	hdr, err := parseOggPageHeader(d.r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, start, io.EOF
		}
		return nil, start, err
	}
	if _, err := d.r.Seek(hdr.bodySize(), io.SeekCurrent); err != nil {
		return nil, start, err
	}
	d.offset += hdr.size() + hdr.bodySize()
	return hdr, start, nil
}

// next returns the next complete packet of any stream.
func (d *oggDemuxer) next() (oggPacket, error) {
	for len(d.queue) == 0 {
		hdr, body, err := d.readPage()
		if err != nil {
			return oggPacket{}, err
		}
		d.splitPage(hdr, body)
	}
	pkt := d.queue[0]
	d.queue = d.queue[1:]
	return pkt, nil
}

// splitPage appends the packets completed on this page to the queue.
func (d *oggDemuxer) splitPage(hdr *oggPageHeader, body []byte) {
	serial := hdr.SerialNumber
	start, ok := d.granule[serial]
	if !ok {
		start = -1
	}

	cur, havePartial := d.partial[serial]
	// A continued page without its beginning (after a seek) cannot be completed.
	dropping := hdr.Flags&oggFlagContinued != 0 && !havePartial

	pos := 0
	for _, lace := range hdr.SegmentTable {
		end := pos + int(lace)
		if !dropping {
			cur = append(cur, body[pos:end]...)
		}
		pos = end
		if lace < 255 {
			if !dropping {
				d.queue = append(d.queue, oggPacket{serial: serial, data: cur, startGranule: start})
			}
			cur = nil
			dropping = false
		}
	}

	if len(cur) > 0 {
		d.partial[serial] = cur
	} else {
		delete(d.partial, serial)
	}
	if hdr.GranulePos != -1 {
		d.granule[serial] = hdr.GranulePos
	}
}

// lastGranules scans the tail of the file for the final granule of each stream.
func lastGranules(r io.ReadSeeker) (map[uint32]int64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	const tail = 64 * 1024
	start := size - tail
	if start < 0 {
		start = 0
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size-start)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	out := make(map[uint32]int64)
	for i := 0; i+oggHeaderSize <= len(buf); i++ {
		if buf[i] != 'O' || string(buf[i:i+4]) != "OggS" || buf[i+4] != 0 {
			continue
		}
		granule := int64(binary.LittleEndian.Uint64(buf[i+6 : i+14]))
		if granule == -1 {
			continue
		}
		out[binary.LittleEndian.Uint32(buf[i+14:i+18])] = granule
	}
	return out, nil
}
