package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Amount is a money value that tolerates the shapes the CMS and scrapers
// hand back: numbers, numeric strings, null. Anything else decodes to 0.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*a = Amount(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*a = Amount(f)
		}
	}
	return nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// UnixSeconds is an epoch timestamp that may arrive as a number or a string.
type UnixSeconds int64

func (u *UnixSeconds) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		*u = 0
		return nil
	}
	*u = UnixSeconds(n)
	return nil
}
