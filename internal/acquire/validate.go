package acquire

import (
	"bytes"
	"mime"
	"strings"

	"github.com/rotisserie/eris"
)

// sniffLen is how far into the body the PDF signature may appear. Some
// generators emit a few junk bytes before the header.
const sniffLen = 1024

var pdfMagic = []byte("%PDF-")

// ErrNotPDF marks content rejected by validation.
var ErrNotPDF = eris.New("acquire: content is not a PDF")

// checkContentType rejects media types that are clearly not a document, such
// as an HTML error page served with 200 OK. Empty and generic binary types
// pass; the signature check decides for those.
func checkContentType(declared string) error {
	if declared == "" {
		return nil
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		strings.Contains(mt, "html"),
		strings.Contains(mt, "json"),
		strings.Contains(mt, "xml"):
		return eris.Wrapf(ErrNotPDF, "declared content type %q", declared)
	}
	return nil
}

// checkMagic requires the PDF signature near the start of head.
func checkMagic(head []byte) error {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if !bytes.Contains(head, pdfMagic) {
		return eris.Wrap(ErrNotPDF, "missing %PDF- signature")
	}
	return nil
}
