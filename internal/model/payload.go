package model

// RawPayload is a report response exactly as the upstream API returned it.
// Neither header is trusted to describe Body.
type RawPayload struct {
	ContentType        string
	ContentDisposition string
	Body               []byte
}

// Size returns the body length in bytes.
func (p RawPayload) Size() int { return len(p.Body) }
