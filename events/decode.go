package events

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/sugawarayuuta/sonnet"

	"github.com/najoast/physarum/topology"
)

const maxLineSize = 1 << 20

// Decode parses one JSON event. Missing sourceType or eventType is not an
// error; such an event simply routes nowhere.
func Decode(data []byte) (topology.Event, error) {
	var ev topology.Event
	if err := sonnet.Unmarshal(data, &ev); err != nil {
		return topology.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}

// ReadJSONLines decodes one event per line. Blank lines are skipped; the
// first malformed line stops the read.
func ReadJSONLines(r io.Reader) ([]topology.Event, error) {
	var out []topology.Event
	err := ScanJSONLines(r, func(ev topology.Event) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}

// ScanJSONLines calls fn for each decoded line, stopping at the first error.
func ScanJSONLines(r io.Reader, fn func(topology.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		ev, err := Decode(data)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}
