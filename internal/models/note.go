// Package models defines the domain types for notesync.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/starford/notesync/internal/parser"
)

// Note is one note and its metadata, as persisted in <key>.json and as
// exchanged with the remote service.
type Note struct {
	Key         string    `json:"key,omitempty"`
	LocalKey    string    `json:"localkey,omitempty"`
	Content     string    `json:"content"`
	CreateDate  Timestamp `json:"createdate"`
	ModifyDate  Timestamp `json:"modifydate"`
	LModifyDate Timestamp `json:"lmodifydate,omitempty"`
	LocalTouch  bool      `json:"localtouch,omitempty"`

	// Server-origin fields. Never invented locally.
	Syncnum    int      `json:"syncnum,omitempty"`
	Version    int      `json:"version,omitempty"`
	MinVersion int      `json:"minversion,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	SystemTags []string `json:"systemtags,omitempty"`
	Deleted    Flag     `json:"deleted,omitempty"`
}

// Title returns the first non-blank line of the content.
func (n *Note) Title() string {
	return parser.Title(n.Content)
}

// IsNew reports whether the note has never been pushed to the server.
func (n *Note) IsNew() bool {
	return n.Key == ""
}

// IsDirty reports whether the note must be pushed on the next sync.
func (n *Note) IsDirty() bool {
	return n.IsNew() || n.LocalTouch
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.Tags = slices.Clone(n.Tags)
	c.SystemTags = slices.Clone(n.SystemTags)
	return &c
}

// Equal reports field-for-field equality.
func (n *Note) Equal(o *Note) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.Key == o.Key &&
		n.LocalKey == o.LocalKey &&
		n.Content == o.Content &&
		n.CreateDate == o.CreateDate &&
		n.ModifyDate == o.ModifyDate &&
		n.LModifyDate == o.LModifyDate &&
		n.LocalTouch == o.LocalTouch &&
		n.Syncnum == o.Syncnum &&
		n.Version == o.Version &&
		n.MinVersion == o.MinVersion &&
		slices.Equal(n.Tags, o.Tags) &&
		slices.Equal(n.SystemTags, o.SystemTags) &&
		n.Deleted == o.Deleted
}

// NoteMetadata is one entry of the remote note list (no content).
type NoteMetadata struct {
	Key        string    `json:"key"`
	Syncnum    int       `json:"syncnum"`
	Version    int       `json:"version,omitempty"`
	ModifyDate Timestamp `json:"modifydate,omitempty"`
	Deleted    Flag      `json:"deleted,omitempty"`
}

// NoteSummary is a lightweight search hit.
type NoteSummary struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Modified Timestamp `json:"modified"`
}

// Timestamp is seconds since the epoch. The remote service sends these as
// decimal strings; local files store plain numbers. Both decode.
type Timestamp float64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(float64(t.UnixNano()) / float64(time.Second))
}

// Time converts ts to a time.Time.
func (ts Timestamp) Time() time.Time {
	sec := int64(ts)
	nsec := int64((float64(ts) - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// String formats ts the way the remote service does, e.g. "1337007469.836000".
func (ts Timestamp) String() string {
	return strconv.FormatFloat(float64(ts), 'f', 6, 64)
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*ts = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*ts = 0
			return nil
		}
		raw = s
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("models: invalid timestamp %s: %w", data, err)
	}
	*ts = Timestamp(f)
	return nil
}

// Flag is a boolean the remote service encodes as 0/1.
type Flag bool

// UnmarshalJSON accepts true/false, 0/1 and "0"/"1".
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*f = false
	default:
		return fmt.Errorf("models: invalid flag %s", data)
	}
	return nil
}
