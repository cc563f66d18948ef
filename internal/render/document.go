package render

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
)

const (
	DefaultPreviewChars = 100
	WaitingPlaceholder  = "Waiting for the first event from GPTScript..."
	NoOutputPlaceholder = "No output available"
)

// Node is either a collapsible group (a details section) or, when Leaf is
// set, a plain line of text inside one.
type Node struct {
	Key      string
	Text     string
	Leaf     bool
	Children []*Node

	// Call-only fields.
	CallID  string
	Depth   int
	Root    bool
	Summary *callframe.Summary
}

func (n *Node) Loading() bool {
	return n.Summary != nil && n.Summary.Loading
}

func (n *Node) add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

type Document struct {
	Roots       []*Node
	Placeholder string
}

func (d Document) Empty() bool {
	return len(d.Roots) == 0
}

type Options struct {
	PreviewChars int
}

// Build turns the forest into a node document. Only nodes reachable from the
// roots appear, each exactly once.
func Build(frames callframe.Frames, forest callframe.Forest, opts Options) Document {
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultPreviewChars
	}
	doc := Document{}

	var stack []*Node
	subcalls := map[string]*Node{}
	forest.Walk(func(id string, depth int) bool {
		frame, ok := frames[id]
		if !ok {
			return false
		}
		if frame.ID == "" {
			frame.ID = id
		}
		node := callNode(frame, depth, len(forest.ChildrenOf(id)) > 0, opts, subcalls)
		if depth == 0 {
			doc.Roots = append(doc.Roots, node)
		} else if parent := stack[depth-1]; parent != nil {
			if group := subcalls[parent.CallID]; group != nil {
				group.add(node)
			}
		}
		stack = append(stack[:depth], node)
		return true
	})

	if doc.Empty() {
		doc.Placeholder = WaitingPlaceholder
	}
	return doc
}

func callNode(frame callframe.CallFrame, depth int, hasChildren bool, opts Options, subcalls map[string]*Node) *Node {
	summary := callframe.Summarize(frame)
	key := "call:" + url.PathEscape(frame.ID)
	node := &Node{
		Key:     key,
		Text:    summary.Label(),
		CallID:  frame.ID,
		Depth:   depth,
		Root:    depth == 0,
		Summary: &summary,
	}

	inputText, structured := frame.InputValue()
	preview := inputText
	if structured {
		preview = compactJSON(inputText)
	}
	input := node.add(&Node{Key: key + "/input", Text: "Message to LLM: " + Preview(preview, opts.PreviewChars)})
	input.Children = valueNodes(input.Key, frame.Input)

	node.add(outputNode(key+"/output", frame.Output, opts))

	if hasChildren {
		subcalls[frame.ID] = node.add(&Node{Key: key + "/subcalls", Text: "Subcalls"})
	}

	if len(frame.LLMRequest) > 0 || len(frame.LLMResponse) > 0 {
		chat := frame.IsChatRequest()
		title, reqTitle, respTitle := "Tool Command and Output", "Command", "Output"
		if chat {
			title, reqTitle, respTitle = "LLM Request & Response", "Request", "Response"
		}
		llm := node.add(&Node{Key: key + "/llm", Text: title})
		if len(frame.LLMRequest) > 0 {
			req := llm.add(&Node{Key: llm.Key + "/request", Text: reqTitle})
			req.Children = valueNodes(req.Key, frame.LLMRequest)
		}
		if len(frame.LLMResponse) > 0 {
			resp := llm.add(&Node{Key: llm.Key + "/response", Text: respTitle})
			resp.Children = valueNodes(resp.Key, frame.LLMResponse)
		}
	}
	return node
}

func outputNode(key string, outputs []callframe.Output, opts Options) *Node {
	group := &Node{Key: key, Text: "Messages"}
	if len(outputs) == 0 {
		group.add(&Node{Key: key + "/empty", Text: NoOutputPlaceholder, Leaf: true})
		return group
	}
	for i, out := range outputs {
		entryKey := key + "/" + strconv.Itoa(i)
		if out.Content != "" {
			entry := group.add(&Node{Key: entryKey, Text: Preview(out.Content, opts.PreviewChars)})
			entry.add(&Node{Key: entryKey + "/text", Text: out.Content, Leaf: true})
			continue
		}
		if len(out.SubCalls) == 0 {
			continue
		}
		ids := make([]string, 0, len(out.SubCalls))
		for id := range out.SubCalls {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sub := out.SubCalls[id]
			entry := group.add(&Node{Key: entryKey + "/call:" + url.PathEscape(id), Text: "Tool call: " + Preview(id, opts.PreviewChars)})
			entry.add(&Node{Key: entry.Key + "/id", Text: "Tool Call ID: " + id, Leaf: true})
			entry.add(&Node{Key: entry.Key + "/tool", Text: "Tool ID: " + sub.ToolID, Leaf: true})
			entry.add(&Node{Key: entry.Key + "/input", Text: "Input: " + sub.Input, Leaf: true})
		}
	}
	return group
}

// valueNodes renders a payload: text that parses as JSON becomes a key/value
// tree, anything else is shown literally.
func valueNodes(key string, raw json.RawMessage) []*Node {
	text, structured := callframe.PayloadText(raw)
	if text == "" && !structured {
		return []*Node{{Key: key + "/empty", Text: "(empty)", Leaf: true}}
	}
	tree, err := parseOrdered([]byte(text))
	if err != nil {
		return []*Node{{Key: key + "/text", Text: text, Leaf: true}}
	}
	return tree.nodes(key + "/json")
}

// Preview collapses whitespace and cuts s to max runes, marking the cut.
func Preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
