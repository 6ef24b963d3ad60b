package timeline

import (
	"encoding/json"
	"strings"
)

// Instruction kinds that carry entries. Every other kind is ignored.
const (
	kindPinEntry   = "TimelinePinEntry"
	kindAddEntries = "TimelineAddEntries"
)

const (
	contentItem   = "TimelineTimelineItem"
	contentModule = "TimelineTimelineModule"
	contentCursor = "TimelineTimelineCursor"
)

// instructionPaths are the envelopes the provider is known to wrap the
// instruction list in, probed in order.
var instructionPaths = [][]string{
	{"instructions"},
	{"timeline", "instructions"},
	{"result", "timeline", "instructions"},
	{"data", "user", "result", "timeline", "timeline", "instructions"},
	{"data", "user", "result", "timeline_v2", "timeline", "instructions"},
}

// object is one JSON object whose members are decoded only when read, so a
// malformed member never hides its siblings.
type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (object, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var o object
	if json.Unmarshal(raw, &o) != nil || o == nil {
		return nil, false
	}
	return o, true
}

// get returns the member key as an object. A missing or non-object member
// yields an empty object.
func (o object) get(key string) object {
	sub, _ := decodeObject(o[key])
	return sub
}

func (o object) str(key string) string {
	s, _ := stringValue(o[key])
	return s
}

func (o object) list(key string) []json.RawMessage {
	raw := o[key]
	if len(raw) == 0 {
		return nil
	}
	var l []json.RawMessage
	if json.Unmarshal(raw, &l) != nil {
		return nil
	}
	return l
}

// kind reads the discriminator, which the provider spells either way.
func (o object) kind(primary string) string {
	if k := o.str(primary); k != "" {
		return k
	}
	return o.str("__typename")
}

// Parse flattens the timeline document into entries: pinned entries first,
// then added entries in document order. It never fails; an unreadable
// document yields no entries.
func Parse(raw []byte) []Entry {
	var pinned, added []Entry
	for _, ri := range locateInstructions(raw) {
		ins, ok := decodeObject(ri)
		if !ok {
			continue
		}
		switch ins.kind("type") {
		case kindPinEntry:
			if len(ins["entry"]) > 0 {
				pinned = append(pinned, parseEntry(ins["entry"]))
			}
		case kindAddEntries:
			for _, re := range ins.list("entries") {
				added = append(added, parseEntry(re))
			}
		}
	}
	return append(pinned, added...)
}

// Extract returns the post bodies of the timeline document in order.
// Entries without a string text field contribute nothing.
func Extract(raw []byte) []string {
	var posts []string
	for _, e := range Parse(raw) {
		if text, ok := Text(e); ok {
			posts = append(posts, text)
		}
	}
	return posts
}

func locateInstructions(raw []byte) []json.RawMessage {
	root, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	for _, path := range instructionPaths {
		o := root
		for _, key := range path[:len(path)-1] {
			o = o.get(key)
		}
		if l := o.list(path[len(path)-1]); len(l) > 0 {
			return l
		}
	}
	return nil
}

func parseEntry(raw json.RawMessage) Entry {
	e, ok := decodeObject(raw)
	if !ok {
		return Unknown{}
	}
	id := e.str("entryId")
	content := e.get("content")

	kind := content.kind("entryType")
	switch {
	case kind == contentCursor || strings.HasPrefix(id, "cursor-"):
		return Cursor{Value: content.str("value")}

	case kind == contentModule:
		items := content.list("items")
		m := Module{Size: len(items)}
		if len(items) > 0 {
			first, _ := decodeObject(items[0])
			if text, _, ok := resolveItem(first.get("item")["itemContent"]); ok {
				m.First = &Post{Text: text}
			}
		}
		return m

	case kind == contentItem || (kind == "" && len(content["itemContent"]) > 0):
		text, repost, ok := resolveItem(content["itemContent"])
		if !ok {
			return Unknown{EntryID: id}
		}
		if repost {
			return Repost{Text: text}
		}
		return Post{Text: text}
	}
	return Unknown{EntryID: id}
}

// resolveItem returns the text carried by a tweet item and whether it came
// from a wrapped (reposted) tweet.
func resolveItem(raw json.RawMessage) (text string, repost bool, ok bool) {
	item, ok := decodeObject(raw)
	if !ok {
		return "", false, false
	}
	if tn := item.str("__typename"); tn != "" && tn != "TimelineTweet" {
		return "", false, false
	}

	tw, ok := decodeTweet(item.get("tweet_results")["result"])
	if !ok {
		return "", false, false
	}
	legacy := tw.get("legacy")
	if inner, ok := decodeTweet(legacy.get("retweeted_status_result")["result"]); ok {
		text, ok := stringValue(inner.get("legacy")["full_text"])
		return text, true, ok
	}
	text, ok = stringValue(legacy["full_text"])
	return text, false, ok
}

// decodeTweet decodes a tweet result, unwrapping visibility envelopes.
func decodeTweet(raw json.RawMessage) (object, bool) {
	tw, ok := decodeObject(raw)
	if !ok {
		return nil, false
	}
	if tw.str("__typename") == "TweetWithVisibilityResults" && len(tw["tweet"]) > 0 {
		return decodeTweet(tw["tweet"])
	}
	return tw, true
}

// stringValue decodes a JSON string. null and every other type report false.
func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s *string
	if json.Unmarshal(raw, &s) != nil || s == nil {
		return "", false
	}
	return *s, true
}
