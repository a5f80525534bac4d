package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MaxFieldLength is the per-field limit enforced by the journal API.
const MaxFieldLength = 256

// EntryID is the server-assigned entry identifier. It is opaque: the
// reference server uses UUID strings, but numeric ids decode too.
type EntryID string

// UnmarshalJSON accepts a JSON string or number. null decodes to "".
func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("entry id must be a string or number: %s", data)
	}
	*id = EntryID(n.String())
	return nil
}

// Entry is the part of a returned journal entry that the checks read.
// Every other field, timestamps included, is ignored: servers format
// those differently and none of them decides a check.
type Entry struct {
	ID   EntryID `json:"id,omitempty"`
	Work string  `json:"work"`
}

// Payload is the request body for create and update.
type Payload struct {
	Work      string `json:"work"`
	Struggle  string `json:"struggle"`
	Intention string `json:"intention"`
}

// NewPayload builds a payload with every field NFC-normalised and cut to
// MaxFieldLength runes.
func NewPayload(work, struggle, intention string) Payload {
	return Payload{
		Work:      clampText(work),
		Struggle:  clampText(struggle),
		Intention: clampText(intention),
	}
}

func clampText(s string) string {
	s = norm.NFC.String(s)
	runes := []rune(s)
	if len(runes) > MaxFieldLength {
		return string(runes[:MaxFieldLength])
	}
	return s
}

// Item is one loosely typed element of a list response. Fields are kept
// as decoded so that callers can tell a string work field from anything
// else.
type Item map[string]any

// ID returns the item's id rendered as an EntryID, and false when the
// item has no usable id.
func (it Item) ID() (EntryID, bool) {
	switch v := it["id"].(type) {
	case string:
		return EntryID(v), v != ""
	case json.Number:
		return EntryID(v.String()), true
	case float64:
		return EntryID(strconv.FormatFloat(v, 'f', -1, 64)), true
	default:
		return "", false
	}
}

// Work returns the work field and whether it is a string.
func (it Item) Work() (string, bool) {
	s, ok := it["work"].(string)
	return s, ok
}
