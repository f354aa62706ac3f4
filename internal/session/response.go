package session

import (
	"github.com/go-viper/mapstructure/v2"
)

// ResponseKind tags the shape of a raw response payload.
type ResponseKind string

const (
	// ResponseNone is the sentinel for timed-out or aborted trials.
	ResponseNone ResponseKind = "none"
	// ResponseChoice is a single discrete choice key.
	ResponseChoice ResponseKind = "choice"
	// ResponseFields maps field names to entered values.
	ResponseFields ResponseKind = "fields"
)

// RawResponse is the tagged union of response payload shapes. Exactly one of
// Choice and Fields is meaningful, selected by Kind.
type RawResponse struct {
	Kind   ResponseKind      `json:"kind"`
	Choice string            `json:"choice,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// NoResponse returns the sentinel payload for trials that resolved without
// participant input.
func NoResponse() RawResponse {
	return RawResponse{Kind: ResponseNone}
}

// ChoiceResponse returns a discrete-choice payload.
func ChoiceResponse(key string) RawResponse {
	return RawResponse{Kind: ResponseChoice, Choice: key}
}

// FieldsResponse returns a field-map payload. A nil map normalizes to an
// empty one so downstream code never sees nil.
func FieldsResponse(fields map[string]string) RawResponse {
	if fields == nil {
		fields = map[string]string{}
	}
	return RawResponse{Kind: ResponseFields, Fields: fields}
}

// Normalize converts a loosely-typed payload (e.g. decoded HTTP JSON) into a
// RawResponse. Recognized shapes are a bare string (choice key), a
// {"choice": ...} object, and a field-name-to-value mapping. Anything
// malformed or unrecognized degrades to an empty fields payload; this never
// fails.
func Normalize(v any) RawResponse {
	switch val := v.(type) {
	case nil:
		return FieldsResponse(nil)
	case string:
		if val == "" {
			return FieldsResponse(nil)
		}
		return ChoiceResponse(val)
	case RawResponse:
		return val
	}

	var choice struct {
		Choice string `mapstructure:"choice"`
	}
	if err := mapstructure.Decode(v, &choice); err == nil && choice.Choice != "" {
		return ChoiceResponse(choice.Choice)
	}

	var fields map[string]string
	cfg := &mapstructure.DecoderConfig{
		Result:           &fields,
		WeaklyTypedInput: true,
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err == nil {
		if err := dec.Decode(v); err == nil && fields != nil {
			delete(fields, "choice")
			return FieldsResponse(fields)
		}
	}

	return FieldsResponse(nil)
}
