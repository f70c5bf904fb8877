package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeMetadata maps a session's free-form metadata onto a caller-defined
// struct. Field matching honors `json` tags, and weakly typed decoding
// converts the json.Number values produced by unmarshalling into plain Go
// numeric fields. A session without metadata leaves out untouched.
func DecodeMetadata(s *Session, out any) error {
	if s == nil || s.Metadata == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build metadata decoder: %w", err)
	}
	if err := dec.Decode(s.Metadata); err != nil {
		return fmt.Errorf("decode session metadata: %w", err)
	}
	return nil
}
