package message

import "encoding/binary"

// writer appends big-endian fields to a fixed-capacity buffer.
type writer struct {
	buf    []byte
	offset int
}

func (w *writer) putUint32(v uint32) error {
	if len(w.buf)-w.offset < 4 {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint32(w.buf[w.offset:], v)
	w.offset += 4
	return nil
}

func (w *writer) putBytes(b []byte) error {
	if len(w.buf)-w.offset < len(b) {
		return ErrBufferTooSmall
	}
	w.offset += copy(w.buf[w.offset:], b)
	return nil
}

// reader consumes big-endian fields and never reads past the slice.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) uint32() (uint32, error) {
	if len(r.data)-r.offset < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *reader) bytes(dst []byte) error {
	if len(r.data)-r.offset < len(dst) {
		return ErrTruncated
	}
	r.offset += copy(dst, r.data[r.offset:])
	return nil
}

func (r *reader) rest() []byte {
	return r.data[r.offset:]
}
