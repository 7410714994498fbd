package source

import (
	"bytes"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// maxGOPBytes caps the buffered group of pictures. A stream that never
// sends another keyframe is dropped rather than buffered forever.
const maxGOPBytes = 8 << 20

// assembler rebuilds an Annex-B H264 stream from RTP packets and keeps
// everything since the last keyframe, so the newest picture can always be
// decoded.
type assembler struct {
	depack codecs.H264Packet
	au     bytes.Buffer
	gop    bytes.Buffer
	keyed  bool
}

// push adds one packet. When the packet completes an access unit and a
// keyframe has been seen, it returns a copy of the buffered GOP.
func (a *assembler) push(pkt *rtp.Packet) ([]byte, bool) {
	nal, err := a.depack.Unmarshal(pkt.Payload)
	if err == nil && len(nal) > 0 {
		a.au.Write(nal)
	}
	if !pkt.Marker {
		return nil, false
	}

	unit := a.au.Bytes()
	if startsGOP(unit) {
		a.gop.Reset()
		a.keyed = true
	}
	if a.keyed {
		a.gop.Write(unit)
	}
	a.au.Reset()

	if a.gop.Len() > maxGOPBytes {
		a.gop.Reset()
		a.keyed = false
	}
	if !a.keyed {
		return nil, false
	}
	return bytes.Clone(a.gop.Bytes()), true
}
