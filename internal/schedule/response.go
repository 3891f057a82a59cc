package schedule

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse is returned when a review response cannot be parsed.
var ErrInvalidResponse = errors.New("schedule: invalid response")

// Response is the self-reported recall difficulty of a review.
type Response int

const (
	Hard Response = iota + 1 // Recalled with difficulty; interval shrinks.
	Good                     // Recalled; interval grows by ease.
	Easy                     // Recalled effortlessly; interval grows faster.
)

var (
	responseNames  = [...]string{Hard: "Hard", Good: "Good", Easy: "Easy"}
	responseByName = map[string]Response{
		"hard": Hard,
		"good": Good,
		"easy": Easy,
	}
)

var (
	_ fmt.Stringer             = Response(0)
	_ encoding.TextMarshaler   = Response(0)
	_ encoding.TextUnmarshaler = (*Response)(nil)
	_ json.Marshaler           = Response(0)
	_ json.Unmarshaler         = (*Response)(nil)
)

// Responses lists every valid response in increasing order of ease.
func Responses() []Response {
	return []Response{Hard, Good, Easy}
}

// IsValid reports whether r is Hard, Good or Easy.
func (r Response) IsValid() bool {
	return r >= Hard && r <= Easy
}

func (r Response) String() string {
	if r.IsValid() {
		return responseNames[r]
	}
	return fmt.Sprintf("Response(%d)", int(r))
}

// ParseResponse parses a case-insensitive response name.
func ParseResponse(s string) (Response, error) {
	r, ok := responseByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResponse, s)
	}
	return r, nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Response) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResponse, int(r))
	}
	return []byte(responseNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Response) UnmarshalText(text []byte) error {
	v, err := ParseResponse(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON encodes the response as a JSON string.
func (r Response) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON expects a JSON string such as "Good".
func (r *Response) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidResponse, data)
	}
	return r.UnmarshalText([]byte(s))
}
