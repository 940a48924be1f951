package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxPayloadBytes = 1 << 20

// Schema validates incoming filter payloads and shapes outgoing ones.
type Schema struct {
	validate *validator.Validate
}

// NewSchema constructs a Schema with a shared validator instance.
func NewSchema() *Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Schema{validate: v}
}

// Load decodes and validates a filter payload. Every failure wraps ErrValidation.
func (s *Schema) Load(body io.Reader) (FilterInput, error) {
	if body == nil {
		return FilterInput{}, &ValidationError{Reasons: []string{"body: required"}}
	}
	dec := json.NewDecoder(io.LimitReader(body, maxPayloadBytes))
	var in FilterInput
	if err := dec.Decode(&in); err != nil {
		return FilterInput{}, &ValidationError{cause: err}
	}
	if dec.More() {
		return FilterInput{}, &ValidationError{Reasons: []string{"body: unexpected trailing data"}}
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Criteria.Condition = strings.ToUpper(strings.TrimSpace(in.Criteria.Condition))
	in.Roles = uniqueStrings(in.Roles)
	in.Users = uniqueStrings(in.Users)

	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return FilterInput{}, &ValidationError{cause: err}
		}
		reasons := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			reasons = append(reasons, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
		return FilterInput{}, &ValidationError{Reasons: reasons}
	}
	return in, nil
}

// Dump returns the wire form of a filter. Collections are never null.
func (s *Schema) Dump(f Filter) Filter {
	if f.Variables == nil {
		f.Variables = []Variable{}
	}
	f.Roles = nonNil(f.Roles)
	f.Users = nonNil(f.Users)
	return f
}

// DumpMany applies Dump to each filter.
func (s *Schema) DumpMany(list []Filter) []Filter {
	out := make([]Filter, 0, len(list))
	for _, f := range list {
		out = append(out, s.Dump(f))
	}
	return out
}

func uniqueStrings(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
