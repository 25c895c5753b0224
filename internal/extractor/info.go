package extractor

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"

	"tubegrab/internal/errs"
)

var (
	maxJSONSize = 32 * 1024 * 1024                                       // 32 MiB scanner buffer, playlists are large
	bufSize     = 4096                                                   // 4 KiB buffer size
	reFilepath  = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`) // file path

	// changing this may break ParseStdout().
	printAfterMove = "after_move:filepath"
)

// Info is the subset of the tool's JSON document the application reads.
type Info struct {
	Type           string   `json:"_type"`
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Uploader       string   `json:"uploader"`
	Channel        string   `json:"channel"`
	ViewCount      *float64 `json:"view_count"`
	Duration       *float64 `json:"duration"`
	DurationString string   `json:"duration_string"`
	Thumbnail      string   `json:"thumbnail"`
	PlaylistCount  int      `json:"playlist_count"`
	WebpageURL     string   `json:"webpage_url"`
	Ext            string   `json:"ext"`
	Entries        []*Info  `json:"entries"`

	// Filename is taken from the line printed after the file was moved into place.
	Filename string `json:"-"`
}

// ValidEntries returns the entries that are present. Unavailable playlist items come back as null.
func (i *Info) ValidEntries() []*Info {
	valid := make([]*Info, 0, len(i.Entries))

	for _, e := range i.Entries {
		if e != nil {
			valid = append(valid, e)
		}
	}

	return valid
}

// ParseStdout parses the tool's stdout into JSON documents, attaching printed file paths
// to the document that precedes them.
func ParseStdout(stdout string) ([]*Info, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxJSONSize)

	var res []*Info

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var info Info
		if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &info) == nil {
			res = append(res, &info)

			continue
		}

		if reFilepath.MatchString(line) && len(res) > 0 {
			res[len(res)-1].Filename = line
		}
	}

	if err := scanner.Err(); err != nil {
		return res, err
	}

	return res, nil
}

// ParseInfo returns the first JSON document found in stdout.
func ParseInfo(stdout string) (*Info, error) {
	infos, err := ParseStdout(stdout)
	if err != nil {
		return nil, errs.New(errs.KindUnknown, "parse info", err)
	}

	if len(infos) == 0 {
		return nil, errs.New(errs.KindUnknown, "parse info", errs.ErrNoMetadata)
	}

	return infos[0], nil
}

// Filenames returns the printed output paths in stdout order.
func Filenames(stdout string) []string {
	infos, err := ParseStdout(stdout)
	if err != nil {
		return nil
	}

	var names []string

	for _, info := range infos {
		if info.Filename != "" {
			names = append(names, info.Filename)
		}
	}

	return names
}
