package inference

import (
	"sort"
	"strconv"
	"strings"
)

// Accumulator rebuilds final output blocks from a chunk sequence. Chunks are
// grouped by block kind and ID; groups keep the order in which their first
// chunk arrived.
type Accumulator struct {
	order        []string
	texts        map[string]*strings.Builder
	tools        map[string]*toolAcc
	thoughts     map[string]*thoughtAcc
	unknowns     map[string]Unknown
	usage        *Usage
	finishReason *FinishReason
}

type toolAcc struct {
	id   string
	name string
	args strings.Builder
}

type thoughtAcc struct {
	text         *strings.Builder
	summaries    map[string]*strings.Builder
	summaryOrder []string
	signature    *string
	providerType *string
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		texts:    make(map[string]*strings.Builder),
		tools:    make(map[string]*toolAcc),
		thoughts: make(map[string]*thoughtAcc),
		unknowns: make(map[string]Unknown),
	}
}

// Add folds one chunk into the accumulator.
func (a *Accumulator) Add(c *Chunk) {
	if c == nil {
		return
	}
	for _, block := range c.Content {
		switch b := block.(type) {
		case TextChunk:
			key := BlockText + ":" + b.ID
			sb, ok := a.texts[key]
			if !ok {
				sb = &strings.Builder{}
				a.texts[key] = sb
				a.order = append(a.order, key)
			}
			sb.WriteString(b.Text)
		case ToolCallChunk:
			key := BlockToolCall + ":" + b.ID
			acc, ok := a.tools[key]
			if !ok {
				acc = &toolAcc{id: b.ID}
				a.tools[key] = acc
				a.order = append(a.order, key)
			}
			if b.RawName != nil {
				acc.name = *b.RawName
			}
			acc.args.WriteString(b.RawArguments)
		case ThoughtChunk:
			key := BlockThought + ":" + b.ID
			acc, ok := a.thoughts[key]
			if !ok {
				acc = &thoughtAcc{summaries: make(map[string]*strings.Builder)}
				a.thoughts[key] = acc
				a.order = append(a.order, key)
			}
			acc.add(b)
		case UnknownChunk:
			key := BlockUnknown + ":" + b.ID + ":" + strconv.Itoa(len(a.order))
			a.unknowns[key] = Unknown{Data: b.Data, ModelName: b.ModelName, ProviderName: b.ProviderName}
			a.order = append(a.order, key)
		}
	}
	if c.Usage != nil {
		a.usage = c.Usage
	}
	if c.FinishReason != nil {
		a.finishReason = c.FinishReason
	}
}

func (t *thoughtAcc) add(b ThoughtChunk) {
	if b.Text != nil {
		if t.text == nil {
			t.text = &strings.Builder{}
		}
		t.text.WriteString(*b.Text)
	}
	if b.SummaryText != nil {
		id := ""
		if b.SummaryID != nil {
			id = *b.SummaryID
		}
		sb, ok := t.summaries[id]
		if !ok {
			sb = &strings.Builder{}
			t.summaries[id] = sb
			t.summaryOrder = append(t.summaryOrder, id)
		}
		sb.WriteString(*b.SummaryText)
	}
	if b.Signature != nil {
		sig := *b.Signature
		if t.signature != nil {
			sig = *t.signature + sig
		}
		t.signature = &sig
	}
	if b.ProviderType != nil {
		t.providerType = b.ProviderType
	}
}

// Output returns the assembled blocks. Thoughts with nothing to store are
// dropped.
func (a *Accumulator) Output() []OutputBlock {
	out := make([]OutputBlock, 0, len(a.order))
	for _, key := range a.order {
		switch {
		case a.texts[key] != nil:
			out = append(out, Text{Text: a.texts[key].String()})
		case a.tools[key] != nil:
			t := a.tools[key]
			out = append(out, ToolCall{ID: t.id, Name: t.name, Arguments: t.args.String()})
		case a.thoughts[key] != nil:
			th := a.thoughts[key].thought()
			if !th.Empty() {
				out = append(out, th)
			}
		default:
			if u, ok := a.unknowns[key]; ok {
				out = append(out, u)
			}
		}
	}
	return out
}

func (t *thoughtAcc) thought() Thought {
	th := Thought{Signature: t.signature, ProviderType: t.providerType}
	if t.text != nil {
		th.Text = Ptr(t.text.String())
	}
	ids := append([]string(nil), t.summaryOrder...)
	sort.SliceStable(ids, func(i, j int) bool { return summaryLess(ids[i], ids[j]) })
	for _, id := range ids {
		th.Summary = append(th.Summary, ThoughtSummary{Text: t.summaries[id].String()})
	}
	return th
}

// Usage returns the last usage seen, if any.
func (a *Accumulator) Usage() *Usage {
	return a.usage
}

// FinishReason returns the finish reason of the stream, if any.
func (a *Accumulator) FinishReason() *FinishReason {
	return a.finishReason
}

// summaryLess orders numeric summary ids numerically and everything else
// lexically.
func summaryLess(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
