package protocol

import "fmt"

// Command selects the framing of a request and the shape of its reply.
type Command uint8

const (
	Query  Command = 1
	Submit Command = 2
)

// ParseCommand accepts the numeric form used on the command line and on the wire.
func ParseCommand(v int) (Command, error) {
	c := Command(v)
	if v < 0 || v > 255 || !c.Valid() {
		return 0, fmt.Errorf("auscout: unknown command %d (want 1 for query, 2 for submit)", v)
	}
	return c, nil
}

func (c Command) Valid() bool {
	return c == Query || c == Submit
}

func (c Command) String() string {
	switch c {
	case Query:
		return "query"
	case Submit:
		return "submit"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}
