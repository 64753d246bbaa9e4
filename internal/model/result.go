package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PollResult maps every logical folder to the subjects found in it.
// A folder that failed on its own holds the single entry ErrorMarker.
type PollResult struct {
	folders map[string][]string
}

// NewPollResult returns a result with all four logical folders present
// and empty.
func NewPollResult() PollResult {
	r := PollResult{folders: make(map[string][]string, len(LogicalFolders))}
	for _, name := range LogicalFolders {
		r.folders[name] = []string{}
	}
	return r
}

// Set replaces the subjects of a logical folder. Unknown names are ignored
// so the result never grows beyond the fixed folders.
func (r PollResult) Set(name string, subjects []string) {
	if _, ok := r.folders[name]; !ok {
		return
	}
	if subjects == nil {
		subjects = []string{}
	}
	r.folders[name] = subjects
}

// Subjects returns the subjects recorded for a logical folder.
func (r PollResult) Subjects(name string) []string {
	return r.folders[name]
}

// Failed reports whether the folder holds only the error marker.
func (r PollResult) Failed(name string) bool {
	s := r.folders[name]
	return len(s) == 1 && s[0] == ErrorMarker
}

// toMap returns a copy of the result keyed by logical folder name.
func (r PollResult) toMap() map[string][]string {
	out := make(map[string][]string, len(r.folders))
	for k, v := range r.folders {
		out[k] = append([]string{}, v...)
	}
	return out
}

// MarshalJSON writes the folders in their fixed logical order. Subjects
// are written without HTML escaping so the marker stays readable.
func (r PollResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, name := range LogicalFolders {
		if i > 0 {
			buf.WriteByte(',')
		}
		subjects := r.folders[name]
		if subjects == nil {
			subjects = []string{}
		}
		if err := enc.Encode(name); err != nil {
			return nil, err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(subjects); err != nil {
			return nil, fmt.Errorf("encoding folder %s: %w", name, err)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// trimNewline drops the newline json.Encoder appends after each value.
func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}
