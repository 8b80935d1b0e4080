// Package vision wraps the external text-detection service. Responses are
// decoded once, at this boundary, into a closed set of variants.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
)

// Kind identifies the shape of a text-detection response.
type Kind int

const (
	// KindUnrecognized is any payload that matches none of the other shapes.
	KindUnrecognized Kind = iota
	// KindAnnotated carries at least one text annotation.
	KindAnnotated
	// KindEmpty is a well-formed response in which no text was found.
	KindEmpty
	// KindServiceError is an explicit error reported by the service.
	KindServiceError
)

func (k Kind) String() string {
	switch k {
	case KindAnnotated:
		return "annotated"
	case KindEmpty:
		return "empty"
	case KindServiceError:
		return "service_error"
	default:
		return "unrecognized"
	}
}

// Response is the decoded result for one image. Raw keeps the payload as the
// service sent it, for audit.
type Response struct {
	Kind    Kind            `json:"kind"`
	Locale  string          `json:"locale,omitempty"`
	Text    string          `json:"text,omitempty"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Client submits a batch of image URIs for text detection. The returned slice
// is index-aligned with uris. An error means the call as a whole failed.
type Client interface {
	Annotate(ctx context.Context, uris []string) ([]Response, error)
}

// Annotated builds a response carrying one annotation.
func Annotated(locale, text string) Response {
	raw, _ := json.Marshal(annotateResponse{TextAnnotations: []entityAnnotation{{Locale: locale, Description: text}}})
	return Response{Kind: KindAnnotated, Locale: locale, Text: text, Raw: raw}
}

// Empty builds a no-text response.
func Empty() Response {
	return Response{Kind: KindEmpty, Raw: json.RawMessage(`{}`)}
}

// ServiceError builds an explicit service error response.
func ServiceError(code int, message string) Response {
	raw, _ := json.Marshal(annotateResponse{Error: &status{Code: code, Message: message}})
	return Response{Kind: KindServiceError, Code: code, Message: message, Raw: raw}
}

type annotateResponse struct {
	TextAnnotations []entityAnnotation `json:"textAnnotations,omitempty"`
	Error           *status            `json:"error,omitempty"`
}

type entityAnnotation struct {
	Locale      string `json:"locale,omitempty"`
	Description string `json:"description,omitempty"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Decode classifies a single AnnotateImageResponse payload.
func Decode(raw json.RawMessage) Response {
	resp := Response{Kind: KindUnrecognized, Raw: raw}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return resp
	}
	if len(fields) == 0 {
		resp.Kind = KindEmpty
		return resp
	}
	var body annotateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return resp
	}
	switch {
	case len(body.TextAnnotations) > 0:
		resp.Kind = KindAnnotated
		resp.Locale = body.TextAnnotations[0].Locale
		resp.Text = body.TextAnnotations[0].Description
	case body.Error != nil:
		resp.Kind = KindServiceError
		resp.Code = body.Error.Code
		resp.Message = body.Error.Message
	}
	return resp
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
