package protocol

// Request is everything one exchange sends. Toggles are only valid for a
// Query and Metadata is only read for a Submit.
type Request struct {
	Command  Command
	Hashes   HashSequence
	Toggles  ToggleSet
	Metadata *TrackMetadata
}

// NewQuery builds a query request; toggles may be nil.
func NewQuery(hashes HashSequence, toggles ToggleSet) *Request {
	return &Request{Command: Query, Hashes: hashes, Toggles: toggles}
}

// NewSubmit builds a submit request; a nil metadata is sent with every field absent.
func NewSubmit(hashes HashSequence, md *TrackMetadata) *Request {
	return &Request{Command: Submit, Hashes: hashes, Metadata: md}
}

// Parts returns the ordered message parts. The last element is the final part
// of the message. Inputs are validated first; on error no part is produced.
func (r *Request) Parts() ([][]byte, error) {
	if !r.Command.Valid() {
		return nil, encodingErrorf("unknown command %d", uint8(r.Command))
	}
	n := len(r.Hashes)

	parts := make([][]byte, 0, 5+len(r.Toggles))
	parts = append(parts,
		[]byte{byte(r.Command)},
		EncodeFrameCount(n),
		EncodeHashes(r.Hashes),
	)

	switch r.Command {
	case Query:
		if err := r.Toggles.Validate(n); err != nil {
			return nil, err
		}
		if p := len(r.Toggles); p > 0 {
			parts = append(parts, []byte{byte(p)})
			parts = append(parts, r.Toggles...)
		}
	case Submit:
		if len(r.Toggles) > 0 {
			return nil, encodingErrorf("toggle variants are not accepted with a submit")
		}
		parts = append(parts, EncodeMetadata(r.Metadata))
	}
	return parts, nil
}

// Envelope is a request as seen by a receiver: the inverse of Parts.
type Envelope struct {
	Command  Command
	Hashes   HashSequence
	Toggles  ToggleSet
	Metadata []byte // raw blob, submit only
}

// DecodeRequest parses the parts of a request message.
func DecodeRequest(parts [][]byte) (*Envelope, error) {
	if len(parts) < 3 {
		return nil, decodeErrorf("request has %d parts, want at least 3", len(parts))
	}
	if len(parts[0]) != 1 {
		return nil, decodeErrorf("command part is %d bytes, want 1", len(parts[0]))
	}
	cmd := Command(parts[0][0])
	if !cmd.Valid() {
		return nil, decodeErrorf("unknown command %d", parts[0][0])
	}
	n, err := DecodeFrameCount(parts[1])
	if err != nil {
		return nil, err
	}
	hashes, err := DecodeHashes(parts[2], n)
	if err != nil {
		return nil, err
	}
	env := &Envelope{Command: cmd, Hashes: hashes}

	rest := parts[3:]
	switch cmd {
	case Query:
		if len(rest) == 0 {
			return env, nil
		}
		if len(rest[0]) != 1 {
			return nil, decodeErrorf("toggle count part is %d bytes, want 1", len(rest[0]))
		}
		p := int(rest[0][0])
		if len(rest)-1 != p {
			return nil, decodeErrorf("toggle count %d but %d toggle parts", p, len(rest)-1)
		}
		env.Toggles = ToggleSet(rest[1:])
		if err := env.Toggles.Validate(n); err != nil {
			return nil, decodeErrorf("%v", err)
		}
	case Submit:
		if len(rest) != 1 {
			return nil, decodeErrorf("submit has %d parts, want 4", len(parts))
		}
		env.Metadata = rest[0]
	}
	return env, nil
}
