package audio

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

// ReadMetadata collects the tags of path. ID3v2 frames take precedence;
// fields they leave unset are filled from ffprobe's container tags when
// ffprobe is available. Missing tags are not an error.
func ReadMetadata(ctx context.Context, path string) (protocol.TrackMetadata, error) {
	md, err := ReadID3(path)
	if err != nil {
		return md, err
	}

	if tags, err := ReadContainerTags(ctx, path); err == nil {
		merge(&md, tags)
	}
	return md, nil
}

// ReadID3 maps the ID3v2 frames of path onto TrackMetadata.
func ReadID3(path string) (protocol.TrackMetadata, error) {
	var md protocol.TrackMetadata

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return md, err
	}
	defer tag.Close()

	if !tag.HasFrames() {
		return md, nil
	}

	text := func(id string) *string {
		return clean(tag.GetTextFrame(id).Text)
	}

	md.Composer = text("TCOM")
	md.Titles = [3]*string{text("TIT1"), text("TIT2"), text("TIT3")}
	md.Performers = [4]*string{text("TPE1"), text("TPE2"), text("TPE3"), text("TPE4")}
	md.Date = text("TDAT")
	md.Album = clean(tag.Album())
	md.Genre = clean(tag.Genre())
	md.Year = leadingInt(tag.Year())
	if ms := leadingInt(tag.GetTextFrame("TLEN").Text); ms != nil {
		md.Duration = protocol.Number(*ms / 1000)
	}
	md.PartOfSet = leadingInt(tag.GetTextFrame("TPOS").Text)

	return md, nil
}

type ffprobeOutput struct {
	Format struct {
		Filename string            `json:"filename"`
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// ReadContainerTags reads container tags and the duration with ffprobe.
func ReadContainerTags(ctx context.Context, path string) (protocol.TrackMetadata, error) {
	var md protocol.TrackMetadata

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return md, ctx.Err()
		}
		return md, err
	}

	return parseContainerTags(out)
}

func parseContainerTags(out []byte) (protocol.TrackMetadata, error) {
	var md protocol.TrackMetadata

	var doc ffprobeOutput
	if err := json.Unmarshal(out, &doc); err != nil {
		return md, err
	}

	// container tag keys vary in case (Vorbis comments are upper case)
	tags := make(map[string]string, len(doc.Format.Tags))
	for k, v := range doc.Format.Tags {
		tags[strings.ToLower(k)] = v
	}

	md.Composer = clean(tags["composer"])
	md.Titles[1] = clean(tags["title"])
	md.Performers[0] = clean(tags["artist"])
	md.Performers[1] = clean(tags["album_artist"])
	md.Performers[2] = clean(tags["performer"])
	md.Album = clean(tags["album"])
	md.Genre = clean(tags["genre"])
	md.Year = leadingInt(tags["date"])
	md.PartOfSet = leadingInt(tags["disc"])

	if d, err := strconv.ParseFloat(doc.Format.Duration, 64); err == nil && d > 0 {
		md.Duration = protocol.Number(int(d))
	}

	return md, nil
}

// merge fills the unset fields of dst from src.
func merge(dst *protocol.TrackMetadata, src protocol.TrackMetadata) {
	fillText := func(d **string, s *string) {
		if *d == nil {
			*d = s
		}
	}
	fillInt := func(d **int, s *int) {
		if *d == nil {
			*d = s
		}
	}

	fillText(&dst.Composer, src.Composer)
	for i := range dst.Titles {
		fillText(&dst.Titles[i], src.Titles[i])
	}
	for i := range dst.Performers {
		fillText(&dst.Performers[i], src.Performers[i])
	}
	fillText(&dst.Date, src.Date)
	fillText(&dst.Album, src.Album)
	fillText(&dst.Genre, src.Genre)
	fillInt(&dst.Year, src.Year)
	fillInt(&dst.Duration, src.Duration)
	fillInt(&dst.PartOfSet, src.PartOfSet)
}

// clean drops the control bytes the blob uses as delimiters and returns nil
// for empty values.
func clean(s string) *string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// leadingInt parses the digits at the start of s, so "3/12" gives 3 and
// "1750-01-01" gives 1750.
func leadingInt(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}
