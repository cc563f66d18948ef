package callframe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

const maxLineBytes = 64 << 20

// LoadResult carries the decoded frames plus counts of what had to be skipped.
type LoadResult struct {
	Frames     Frames
	Skipped    int
	MissingIDs int
}

type frameEvent struct {
	Call *CallFrame `json:"call"`
}

// LoadFile reads frames from path ("-" is not handled here; see Load).
// Files ending in .xz are decompressed first.
func LoadFile(path string) (LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".xz") {
		xr, err := xz.NewReader(bufio.NewReader(f))
		if err != nil {
			return LoadResult{}, fmt.Errorf("open xz stream %s: %w", path, err)
		}
		r = xr
	}
	res, err := Load(r)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", path, err)
	}
	return res, nil
}

// Load accepts a JSON object keyed by call id, a JSON array of frames, or a
// JSONL stream of frames (optionally wrapped as {"call": ...}). In the stream
// form later lines replace earlier frames with the same id.
func Load(r io.Reader) (LoadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return LoadResult{}, err
	}
	data = bytes.TrimSpace(data)
	res := LoadResult{Frames: Frames{}}
	if len(data) == 0 {
		return res, nil
	}

	switch data[0] {
	case '{':
		if ok := loadObject(data, &res); ok {
			return res, nil
		}
		res = LoadResult{Frames: Frames{}}
		return res, loadLines(data, &res)
	case '[':
		var list []CallFrame
		if err := json.Unmarshal(data, &list); err != nil {
			return LoadResult{}, fmt.Errorf("parse frame list: %w", err)
		}
		for _, frame := range list {
			res.add("", frame)
		}
		return res, nil
	default:
		return LoadResult{}, fmt.Errorf("unrecognized call frame data (starts with %q)", data[0])
	}
}

// loadObject handles the single-document forms: an id -> frame map, one bare
// frame, or one event envelope. It returns false when data is not a single
// JSON value so the caller can fall back to line-by-line decoding.
func loadObject(data []byte, res *LoadResult) bool {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return false
	}
	if dec.More() {
		return false
	}
	if _, ok := doc["call"]; ok {
		return decodeEventLine(data, res)
	}
	if looksLikeFrame(doc) {
		var frame CallFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return false
		}
		res.add("", frame)
		return true
	}
	for key, raw := range doc {
		var frame CallFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			res.Skipped++
			continue
		}
		if k := strings.TrimSpace(key); k != "" {
			frame.ID = k
		}
		res.add(key, frame)
	}
	return true
}

func loadLines(data []byte, res *LoadResult) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !decodeEventLine(line, res) {
			res.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan frame stream: %w", err)
	}
	return nil
}

func decodeEventLine(line []byte, res *LoadResult) bool {
	var ev frameEvent
	if err := json.Unmarshal(line, &ev); err == nil && ev.Call != nil {
		res.add("", *ev.Call)
		return true
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(line, &doc); err != nil || !looksLikeFrame(doc) {
		return false
	}
	var frame CallFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		return false
	}
	res.add("", frame)
	return true
}

func looksLikeFrame(doc map[string]json.RawMessage) bool {
	if _, ok := doc["id"]; !ok {
		return false
	}
	for _, key := range []string{"start", "type", "tool", "parentID", "output", "input"} {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func (r *LoadResult) add(key string, frame CallFrame) {
	if frame.ID == "" {
		frame.ID = strings.TrimSpace(key)
	}
	if frame.ID == "" {
		r.MissingIDs++
		return
	}
	r.Frames[frame.ID] = frame
}
