// Package schema defines the shared content, message, document, and session
// types used across the ingestion pipeline and the query engine.
package schema

// ContentType identifies the concrete kind of a ContentPart.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

// ContentPart is one piece of a message's or tool result's content.
type ContentPart interface {
	PartType() ContentType
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

func (TextPart) PartType() ContentType { return ContentText }

// ImagePart carries inline image bytes and/or a remote URL.
type ImagePart struct {
	Data     []byte
	MimeType string
	URL      string
}

func (ImagePart) PartType() ContentType { return ContentImage }

// AudioPart carries inline audio bytes.
type AudioPart struct {
	Data       []byte
	Format     string
	SampleRate int
}

func (AudioPart) PartType() ContentType { return ContentAudio }

// VideoPart carries inline video bytes and/or a remote URL.
type VideoPart struct {
	Data     []byte
	MimeType string
	URL      string
}

func (VideoPart) PartType() ContentType { return ContentVideo }

// FilePart carries an arbitrary named file attachment.
type FilePart struct {
	Data     []byte
	Name     string
	MimeType string
}

func (FilePart) PartType() ContentType { return ContentFile }
