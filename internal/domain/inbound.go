package domain

// PartKind tags the payload variant of an inbound message part. Only text
// parts contribute content; every other kind is ignored at the boundary.
type PartKind string

const PartText PartKind = "text"

// Part is one segment of an inbound message.
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
}

// InboundMessage is the request-side message shape before validation. It is
// converted to a Message only after its text content has been extracted and
// checked.
type InboundMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}
