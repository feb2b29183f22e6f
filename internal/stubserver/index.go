// Package stubserver is a small in-memory stand-in for auscoutd. It speaks
// the same request/reply protocol so the client can be exercised locally;
// its matching is exact-hash voting, nothing more.
package stubserver

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

type posting struct {
	id  int32
	pos int
}

// Index maps hash values to the submissions that contain them.
type Index struct {
	mu       sync.Mutex
	nextID   int32
	postings map[uint32][]posting
	tracks   map[int32]string
}

func NewIndex() *Index {
	return &Index{
		nextID:   1,
		postings: make(map[uint32][]posting),
		tracks:   make(map[int32]string),
	}
}

// Len returns the number of stored submissions.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.tracks)
}

// Handle answers one request message. Malformed submissions get id 0, the
// value auscoutd uses for a rejected submission; malformed queries get an
// error text.
func (ix *Index) Handle(parts [][]byte) []byte {
	env, err := protocol.DecodeRequest(parts)
	if err != nil {
		if len(parts) > 0 && len(parts[0]) == 1 && protocol.Command(parts[0][0]) == protocol.Submit {
			return protocol.EncodeIdentifier(0)
		}
		return cString(fmt.Sprintf("error: %v", err))
	}

	switch env.Command {
	case protocol.Submit:
		return protocol.EncodeIdentifier(ix.submit(env))
	default:
		return cString(ix.query(env))
	}
}

func (ix *Index) submit(env *protocol.Envelope) int32 {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := ix.nextID
	ix.nextID++
	for pos, h := range env.Hashes {
		ix.postings[h] = append(ix.postings[h], posting{id: id, pos: pos})
	}
	ix.tracks[id] = describe(env.Metadata)
	return id
}

func (ix *Index) query(env *protocol.Envelope) string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	candidates := [][]uint32{env.Hashes}
	for k := range env.Toggles {
		v, err := env.Toggles.Variant(k)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		candidates = append(candidates, v)
	}

	// one vote per (frame, id) however many candidates hit it
	votes := make(map[int32]int)
	for i := range env.Hashes {
		seen := make(map[int32]bool)
		for _, c := range candidates {
			for _, p := range ix.postings[c[i]] {
				if !seen[p.id] {
					seen[p.id] = true
					votes[p.id]++
				}
			}
		}
	}
	if len(votes) == 0 {
		return "no match"
	}

	ids := make([]int32, 0, len(votes))
	for id := range votes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if votes[ids[i]] == votes[ids[j]] {
			return ids[i] < ids[j]
		}
		return votes[ids[i]] > votes[ids[j]]
	})
	best := ids[0]
	return fmt.Sprintf("match id=%d frames=%d/%d %s", best, votes[best], len(env.Hashes), ix.tracks[best])
}

// describe turns a metadata blob into a single display line.
func describe(blob []byte) string {
	blob = bytes.TrimRight(blob, "\x00 ")
	fields := bytes.Split(blob, []byte{30})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, string(bytes.Join(bytes.Fields(f), []byte(" "))))
	}
	return "[" + joinNonEmpty(out, " | ") + "]"
}

func joinNonEmpty(fields []string, sep string) string {
	var b bytes.Buffer
	for _, f := range fields {
		if f == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(f)
	}
	return b.String()
}

func cString(s string) []byte {
	return append([]byte(s), 0)
}
