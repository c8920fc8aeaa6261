package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/3leaps/objmanifest/pkg/listing"
)

var (
	// ErrEmptyManifest is returned when the input has no header line.
	ErrEmptyManifest = errors.New("manifest is empty")

	// ErrBadHeader is returned when the first line is not Header.
	ErrBadHeader = errors.New("unexpected manifest header")
)

// LineError reports an unparseable manifest line.
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parse reads a manifest back into records.
//
// Size and timestamp never contain commas, so each line is split at its last
// two commas and keys containing commas survive.
func Parse(r io.Reader) ([]listing.ObjectRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEmptyManifest
	}
	if sc.Text() != Header {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, sc.Text())
	}

	records := []listing.ObjectRecord{}
	line := 1
	for sc.Scan() {
		line++
		rec, err := parseLine(sc.Text())
		if err != nil {
			return nil, &LineError{Line: line, Reason: err.Error()}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseLine(text string) (listing.ObjectRecord, error) {
	last := strings.LastIndexByte(text, ',')
	if last < 0 {
		return listing.ObjectRecord{}, errors.New("missing size and timestamp")
	}
	mid := strings.LastIndexByte(text[:last], ',')
	if mid < 0 {
		return listing.ObjectRecord{}, errors.New("missing timestamp")
	}

	key, sizeText, ts := text[:mid], text[mid+1:last], text[last+1:]
	if key == "" {
		return listing.ObjectRecord{}, errors.New("empty key")
	}
	if ts == "" {
		return listing.ObjectRecord{}, errors.New("empty timestamp")
	}
	size, err := strconv.ParseUint(sizeText, 10, 64)
	if err != nil {
		return listing.ObjectRecord{}, fmt.Errorf("invalid size %q", sizeText)
	}
	return listing.ObjectRecord{Key: key, Size: size, Timestamp: ts}, nil
}

// ReadFile parses the manifest for partition from fs.
func ReadFile(fs billy.Filesystem, partition string) ([]listing.ObjectRecord, error) {
	f, err := fs.Open(Path(partition))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
