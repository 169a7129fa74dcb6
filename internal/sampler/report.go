package sampler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
)

// Separator delimits fields of a report row. It is passed to the tool as
// "-x;".
const Separator = ";"

// minFields is the row shape: count;?;name;?;?
const minFields = 5

// ErrMalformedReport is wrapped by every report parsing failure.
var ErrMalformedReport = errors.New("malformed sampler report")

// Row is one parsed report line.
type Row struct {
	Count uint64

	// Name is the tool's display name for the counter. It drops counter-mask
	// qualifiers, so it is kept for diagnostics and never used for matching.
	Name string

	// Fields holds every raw field, including the second, fourth and fifth
	// whose meaning is not relied on.
	Fields []string
}

// ParseRows reads the report line by line. Anything after '#' is a
// comment, blank lines are skipped and each remaining line must carry at
// least five fields with an unsigned integer count first.
func ParseRows(r io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, Separator)
		if len(fields) < minFields {
			return nil, fmt.Errorf("%w: line %d: %d fields, want at least %d: %q",
				ErrMalformedReport, lineNo, len(fields), minFields, line)
		}
		count, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: count %q: %v", ErrMalformedReport, lineNo, fields[0], err)
		}
		rows = append(rows, Row{Count: count, Name: fields[2], Fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return rows, nil
}

// ParseReport pairs report rows with the requested events by position:
// row i holds the count of set.Events()[i].
func ParseReport(r io.Reader, set *counter.Set) (counter.Counts, error) {
	rows, err := ParseRows(r)
	if err != nil {
		return counter.Counts{}, err
	}
	if len(rows) != set.Len() {
		return counter.Counts{}, fmt.Errorf("%w: %d rows for %d requested events",
			ErrMalformedReport, len(rows), set.Len())
	}

	values := make([]uint64, len(rows))
	events := set.Events()
	for i, row := range rows {
		values[i] = row.Count
		log.Debugf("%s = %d (reported as %q)", events[i], row.Count, row.Name)
	}
	return counter.NewCounts(set, values)
}
