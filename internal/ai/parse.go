package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// stripFence removes a markdown code fence around the payload, if any
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	body := s[start+3:]
	// Drop the language tag on the opening fence line
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		if tag := strings.TrimSpace(body[:nl]); tag == "" || !strings.ContainsAny(tag, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// parseJSONOutput turns provider text into validated JSON bytes
func parseJSONOutput(text string, validate func([]byte) error) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationError{Reason: ReasonEmptyResponse, Raw: text, Err: errors.New("empty response from model")}
	}
	body := []byte(stripFence(text))
	if !json.Valid(body) {
		return nil, &GenerationError{Reason: ReasonInvalidResponse, Raw: text, Err: errors.New("response is not valid JSON")}
	}
	if validate != nil {
		if err := validate(body); err != nil {
			return nil, &GenerationError{Reason: ReasonInvalidResponse, Raw: text, Err: err}
		}
	}
	return body, nil
}
