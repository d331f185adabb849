// Package wire decodes the platform's text response formats.
//
// Most endpoints answer in the keypair format: one key:value pair per line,
// values optionally wrapped in double quotes, and a success field holding the
// literal true or false. Whitespace around a key or value is dropped; text
// inside the quotes is kept byte for byte. The bulk data-dump endpoint answers in the dump
// format: a status line followed by a raw payload block.
package wire

import (
	"strings"
)

const (
	// DefaultSeparator splits keys from values in keypair responses.
	DefaultSeparator = ':'

	// SuccessKey holds the literal true or false.
	SuccessKey = "success"
	// MessageKey carries the platform's failure reason.
	MessageKey = "message"
)

// Response is one decoded keypair response.
type Response struct {
	fields map[string]string

	// Succeeded is true when the success field holds the literal "true".
	Succeeded bool
	// Message is the platform message field, empty when absent.
	Message string
	// Malformed counts lines that contained the separator but no key.
	Malformed int
}

// Get returns the value stored for key.
func (r Response) Get(key string) (string, bool) {
	value, ok := r.fields[key]
	return value, ok
}

// Value returns the value stored for key, or an empty string.
func (r Response) Value(key string) string {
	return r.fields[key]
}

// Fields returns a copy of every decoded field.
func (r Response) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for key, value := range r.fields {
		out[key] = value
	}
	return out
}

// Len returns the number of distinct decoded keys.
func (r Response) Len() int {
	return len(r.fields)
}

// Record is one entry of a list response.
type Record map[string]string

// Option configures keypair decoding.
type Option func(*decodeOptions)

type decodeOptions struct {
	separator      rune
	requireSuccess bool
}

// WithSeparator overrides the key/value separator.
func WithSeparator(separator rune) Option {
	return func(opts *decodeOptions) {
		opts.separator = separator
	}
}

// WithoutSuccessCheck returns the mapping regardless of the success field.
func WithoutSuccessCheck() Option {
	return func(opts *decodeOptions) {
		opts.requireSuccess = false
	}
}

// DecodeKeypair parses a keypair response. Unless WithoutSuccessCheck is
// given, a response without success=true fails with a *DecodeError.
func DecodeKeypair(raw string, options ...Option) (Response, error) {
	opts := resolveOptions(options)

	response := Response{fields: map[string]string{}}
	parsed := 0
	for _, line := range splitLines(raw) {
		key, value, ok := splitPair(line, opts.separator)
		if !ok {
			continue
		}
		if key == "" {
			response.Malformed++
			continue
		}
		response.fields[key] = value
		parsed++
	}

	return finish(response, parsed, opts)
}

// DecodeKeypairRecords parses a list response in which each record starts
// with firstKey. The success and message fields are kept on the Response and
// excluded from the records.
func DecodeKeypairRecords(raw string, firstKey string, options ...Option) (Response, []Record, error) {
	opts := resolveOptions(options)
	firstKey = strings.TrimSpace(firstKey)

	response := Response{fields: map[string]string{}}
	records := []Record{}
	var current Record
	parsed := 0
	for _, line := range splitLines(raw) {
		key, value, ok := splitPair(line, opts.separator)
		if !ok {
			continue
		}
		if key == "" {
			response.Malformed++
			continue
		}
		response.fields[key] = value
		parsed++

		if key == SuccessKey || key == MessageKey {
			continue
		}
		if current == nil || (key == firstKey && hasKey(current, firstKey)) {
			current = Record{}
			records = append(records, current)
		}
		current[key] = value
	}

	response, err := finish(response, parsed, opts)
	if err != nil {
		return response, nil, err
	}
	return response, records, nil
}

func finish(response Response, parsed int, opts decodeOptions) (Response, error) {
	success, hasSuccess := response.fields[SuccessKey]
	response.Succeeded = hasSuccess && success == "true"
	response.Message = response.fields[MessageKey]

	if !opts.requireSuccess {
		return response, nil
	}
	if parsed == 0 {
		if response.Malformed > 0 {
			return response, newDecodeError(KindMalformedLine, "no line carried a key")
		}
		return response, newDecodeError(KindEmptyResponse, "")
	}
	if !hasSuccess {
		return response, newDecodeError(KindNoSuccessMarker, "response does not contain a success key")
	}
	if success != "true" {
		message := strings.TrimSpace(response.Message)
		if message == "" {
			message = genericFailureMessage
		}
		return response, newDecodeError(KindExplicitFailure, message)
	}
	return response, nil
}

func resolveOptions(options []Option) decodeOptions {
	resolved := decodeOptions{separator: DefaultSeparator, requireSuccess: true}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&resolved)
	}
	return resolved
}

// splitPair splits on the first separator only; values such as URLs may
// contain it again.
func splitPair(line string, separator rune) (string, string, bool) {
	key, value, found := strings.Cut(line, string(separator))
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), trimQuotes(strings.TrimSpace(value)), true
}

func trimQuotes(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	return value
}

func splitLines(raw string) []string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func hasKey(record Record, key string) bool {
	_, ok := record[key]
	return ok
}
