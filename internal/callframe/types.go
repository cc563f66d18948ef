package callframe

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// EventCallFinish is the frame type of a completed call; every other type
// means the call is still running.
const EventCallFinish = "callFinish"

type Frames map[string]CallFrame

type CallFrame struct {
	ID           string
	ParentID     string
	Start        time.Time
	End          time.Time
	Type         string
	Tool         *Tool
	ToolCategory string
	Input        json.RawMessage
	Output       []Output
	LLMRequest   json.RawMessage
	LLMResponse  json.RawMessage
}

type Tool struct {
	Name   string `json:"name"`
	Chat   bool   `json:"chat"`
	Source Source `json:"source"`
}

type Source struct {
	Location string `json:"location"`
	LineNo   int    `json:"lineNo"`
	Repo     *Repo  `json:"repo,omitempty"`
}

// Repo accepts either a bare string or the SDK's repo object.
type Repo struct {
	VCS      string `json:"VCS"`
	Root     string `json:"Root"`
	Path     string `json:"Path"`
	Name     string `json:"Name"`
	Revision string `json:"Revision"`
}

type Output struct {
	Content  string             `json:"content,omitempty"`
	SubCalls map[string]SubCall `json:"subCalls,omitempty"`
}

type SubCall struct {
	ToolID string `json:"toolID"`
	Input  string `json:"input"`
}

type frameJSON struct {
	ID           string          `json:"id"`
	ParentID     string          `json:"parentID"`
	Start        string          `json:"start"`
	End          string          `json:"end"`
	Type         string          `json:"type"`
	Tool         *Tool           `json:"tool,omitempty"`
	ToolCategory string          `json:"toolCategory,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       []Output        `json:"output,omitempty"`
	LLMRequest   json.RawMessage `json:"llmRequest,omitempty"`
	LLMResponse  json.RawMessage `json:"llmResponse,omitempty"`
}

func (f *CallFrame) UnmarshalJSON(data []byte) error {
	var raw frameJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = CallFrame{
		ID:           strings.TrimSpace(raw.ID),
		ParentID:     strings.TrimSpace(raw.ParentID),
		Start:        parseTime(raw.Start),
		End:          parseTime(raw.End),
		Type:         raw.Type,
		Tool:         raw.Tool,
		ToolCategory: raw.ToolCategory,
		Input:        nullToEmpty(raw.Input),
		Output:       raw.Output,
		LLMRequest:   nullToEmpty(raw.LLMRequest),
		LLMResponse:  nullToEmpty(raw.LLMResponse),
	}
	return nil
}

func (f CallFrame) MarshalJSON() ([]byte, error) {
	raw := frameJSON{
		ID:           f.ID,
		ParentID:     f.ParentID,
		Type:         f.Type,
		Tool:         f.Tool,
		ToolCategory: f.ToolCategory,
		Input:        f.Input,
		Output:       f.Output,
		LLMRequest:   f.LLMRequest,
		LLMResponse:  f.LLMResponse,
	}
	if !f.Start.IsZero() {
		raw.Start = f.Start.Format(time.RFC3339Nano)
	}
	if !f.End.IsZero() {
		raw.End = f.End.Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

func (r *Repo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Repo{Root: s}
		return nil
	}
	type plain Repo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Repo(p)
	return nil
}

func (r *Repo) Display() string {
	if r == nil {
		return ""
	}
	if v := strings.TrimSpace(r.Root); v != "" {
		return v
	}
	return strings.TrimSpace(r.Name)
}

func (f CallFrame) Finished() bool {
	return f.Type == EventCallFinish
}

func (f CallFrame) ToolName() string {
	if f.Tool == nil {
		return ""
	}
	return f.Tool.Name
}

func (f CallFrame) IsChat() bool {
	return f.Tool != nil && f.Tool.Chat
}

// DisplayName falls back from tool name to source repo, then location, then "main".
func (f CallFrame) DisplayName() string {
	if f.Tool != nil {
		if f.Tool.Name != "" {
			return f.Tool.Name
		}
		if repo := f.Tool.Source.Repo.Display(); repo != "" {
			return repo
		}
		if f.Tool.Source.Location != "" {
			return f.Tool.Source.Location
		}
	}
	return "main"
}

// Duration reports end-start; ok is false while the frame has no end.
func (f CallFrame) Duration() (time.Duration, bool) {
	if f.End.IsZero() {
		return 0, false
	}
	return f.End.Sub(f.Start), true
}

// InputValue returns the input as a plain string when it was encoded as a JSON
// string, or the raw JSON text otherwise.
func (f CallFrame) InputValue() (text string, structured bool) {
	return PayloadText(f.Input)
}

// IsChatRequest reports whether the LLM request payload carries a "messages" key.
func (f CallFrame) IsChatRequest() bool {
	if len(f.LLMRequest) == 0 {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(f.LLMRequest, &obj); err != nil {
		return false
	}
	_, ok := obj["messages"]
	return ok
}

// PayloadText unwraps a JSON string payload; any other JSON value is returned
// as its raw text with structured set.
func PayloadText(raw json.RawMessage) (text string, structured bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, false
		}
	}
	return string(raw), true
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}
