package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 4 * 1024 * 1024

// ReadFile loads every record in an audit log. A missing file is an empty
// log.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return ReadAll(file)
}

// ReadAll decodes records from a JSONL stream.
func ReadAll(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []Record
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
