package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Response is the outcome of one request against the journal API.
//
// A transport failure still produces a Response: Status is 0 and Err
// holds the cause. Every request therefore yields exactly one value to
// classify.
type Response struct {
	Method   string
	URL      string
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// Failed reports whether the request failed at the HTTP level: a
// transport error or a status of 400 or above.
func (r *Response) Failed() bool {
	return r.Status == 0 || r.Status >= 400
}

// StatusIn reports whether the status is one of statuses.
func (r *Response) StatusIn(statuses ...int) bool {
	for _, s := range statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.Method, r.URL, err)
	}
	return nil
}

// Entry decodes the body as a single entry.
func (r *Response) Entry() (Entry, error) {
	var e Entry
	err := r.JSON(&e)
	return e, err
}

// ErrNotArray is returned by Items when the body is valid JSON but not
// an array. null is not an array.
var ErrNotArray = errors.New("body is not a JSON array")

// IsArray reports whether the body is a JSON array.
func (r *Response) IsArray() bool {
	if r.Err != nil {
		return false
	}
	body := bytes.TrimSpace(r.Body)
	return len(body) > 0 && body[0] == '[' && json.Valid(body)
}

// Items decodes the body as an array of loosely typed objects. Elements
// that are not objects decode as empty items.
func (r *Response) Items() ([]Item, error) {
	var raw []json.RawMessage
	if err := r.JSON(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("decode %s %s: %w", r.Method, r.URL, ErrNotArray)
	}
	items := make([]Item, 0, len(raw))
	for _, elem := range raw {
		var it Item
		dec := json.NewDecoder(bytes.NewReader(elem))
		dec.UseNumber()
		if err := dec.Decode(&it); err != nil || it == nil {
			it = Item{}
		}
		items = append(items, it)
	}
	return items, nil
}

// String renders the response for log lines and fatal errors.
func (r *Response) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %v", r.Method, r.URL, r.Err)
	}
	return fmt.Sprintf("%s %s: %d %s", r.Method, r.URL, r.Status, bytes.TrimSpace(r.Body))
}
