package protocol

import (
	"bytes"
	"strconv"
)

const (
	recordSeparator = 30
	space           = ' '
)

// TrackMetadata describes one audio file. A nil field is absent; the blob
// encoding is the only place absence collapses to "" or 0.
type TrackMetadata struct {
	Composer   *string
	Titles     [3]*string
	Performers [4]*string
	Date       *string
	Album      *string
	Genre      *string
	Year       *int
	Duration   *int // seconds
	PartOfSet  *int
}

// Text and Number build optional field values.
func Text(s string) *string { return &s }
func Number(n int) *int { return &n }

// Empty reports whether no field is set.
func (m *TrackMetadata) Empty() bool {
	if m == nil {
		return true
	}
	for _, s := range []*string{m.Composer, m.Date, m.Album, m.Genre} {
		if s != nil {
			return false
		}
	}
	for _, s := range m.Titles {
		if s != nil {
			return false
		}
	}
	for _, s := range m.Performers {
		if s != nil {
			return false
		}
	}
	return m.Year == nil && m.Duration == nil && m.PartOfSet == nil
}

// EncodeMetadata renders the submit blob. The field order and spacing are
// fixed by the server:
//
//	composer ␞ t1 t2 t3 ␞ p1 p2 p3 p4 ␞ date ␞ album ␞ genre ␞ year ␞ duration ␞ part NUL
//
// where every ␞ is surrounded by single spaces, each title and performer
// fragment is followed by a space, and the part-of-set is followed by one
// trailing space before the NUL.
func EncodeMetadata(m *TrackMetadata) []byte {
	if m == nil {
		m = &TrackMetadata{}
	}

	var buf bytes.Buffer
	buf.Grow(256)

	writeText(&buf, m.Composer)
	writeDelim(&buf)

	for _, t := range m.Titles {
		writeText(&buf, t)
		buf.WriteByte(space)
	}
	buf.WriteByte(recordSeparator)
	buf.WriteByte(space)

	for _, p := range m.Performers {
		writeText(&buf, p)
		buf.WriteByte(space)
	}
	buf.WriteByte(recordSeparator)
	buf.WriteByte(space)

	writeText(&buf, m.Date)
	writeDelim(&buf)
	writeText(&buf, m.Album)
	writeDelim(&buf)
	writeText(&buf, m.Genre)
	writeDelim(&buf)
	writeNumber(&buf, m.Year)
	writeDelim(&buf)
	writeNumber(&buf, m.Duration)
	writeDelim(&buf)
	writeNumber(&buf, m.PartOfSet)
	buf.WriteByte(space)
	buf.WriteByte(0)

	return buf.Bytes()
}

func writeDelim(buf *bytes.Buffer) {
	buf.WriteByte(space)
	buf.WriteByte(recordSeparator)
	buf.WriteByte(space)
}

func writeText(buf *bytes.Buffer, s *string) {
	if s != nil {
		buf.WriteString(*s)
	}
}

func writeNumber(buf *bytes.Buffer, n *int) {
	v := 0
	if n != nil {
		v = *n
	}
	buf.WriteString(strconv.Itoa(v))
}
