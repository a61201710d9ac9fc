package model

// EnvelopeCodeOK is the business success code used by the backend.
const EnvelopeCodeOK = 200

// Envelope is the response wrapper used by every REST endpoint.
// Code != 200 signals a business failure carrying Message; Data is
// absent in that case.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// OK reports whether the envelope carries a successful result.
func (e Envelope[T]) OK() bool {
	return e.Code == EnvelopeCodeOK
}
