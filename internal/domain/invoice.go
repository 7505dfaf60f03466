package domain

import (
	"fmt"
	"strings"
)

// AttachmentKind is the format of a rendered invoice attachment.
type AttachmentKind string

const (
	AttachmentPDF  AttachmentKind = "pdf"
	AttachmentPNG  AttachmentKind = "png"
	AttachmentHTML AttachmentKind = "html"
)

// MIME returns the attachment's content type.
func (k AttachmentKind) MIME() string {
	switch k {
	case AttachmentPDF:
		return "application/pdf"
	case AttachmentPNG:
		return "image/png"
	default:
		return "text/html; charset=utf-8"
	}
}

// Ext returns the file extension matching MIME.
func (k AttachmentKind) Ext() string {
	switch k {
	case AttachmentPDF:
		return "pdf"
	case AttachmentPNG:
		return "png"
	default:
		return "html"
	}
}

// AttachMode is the attachment type requested for a run.
type AttachMode string

const (
	AttachModePDF  AttachMode = "pdf"
	AttachModePNG  AttachMode = "png"
	AttachModeNone AttachMode = "none"
)

// ParseAttachMode parses pdf, png or none. An empty string yields AttachModePDF.
func ParseAttachMode(s string) (AttachMode, error) {
	switch AttachMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AttachModePDF:
		return AttachModePDF, nil
	case AttachModePNG:
		return AttachModePNG, nil
	case AttachModeNone, "html":
		return AttachModeNone, nil
	default:
		return "", fmt.Errorf("unknown attach mode %q", s)
	}
}

// Kind returns the attachment kind a renderer should be asked for.
func (m AttachMode) Kind() AttachmentKind {
	switch m {
	case AttachModePNG:
		return AttachmentPNG
	case AttachModeNone:
		return AttachmentHTML
	default:
		return AttachmentPDF
	}
}

// Attachment is the file sent along with an invoice.
type Attachment struct {
	Name string
	Kind AttachmentKind
	MIME string
	Data []byte
}

// RenderDiagnostics describes which attachment path was taken.
type RenderDiagnostics struct {
	Requested AttachMode
	Attempted AttachmentKind
	OK        bool
	Bytes     int
	Error     string
}

// InvoiceDocument is a composed invoice ready for dispatch. Total always
// equals round(Quantity*Rate, 2) and Attachment.Data is never empty.
type InvoiceDocument struct {
	TenantID    string
	CompanyKey  string
	CompanyName string
	RunDate     CivilDate
	Description string
	Quantity    int
	Rate        float64
	Total       float64
	Currency    string
	Detail      string
	HTML        string
	Recipients  []string
	Attachment  Attachment
	Diagnostics RenderDiagnostics
}

// SendReceipt is what the webhook answered for a delivered invoice.
type SendReceipt struct {
	Status int
	Body   string
}
