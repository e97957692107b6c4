package form

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/dchest/uniuri"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/header"
)

const ContentTypeMultipart = "multipart/form-data"

const boundaryPrefix = "----HydroFormBoundary"

// Field is one multipart entry. A field with a Reader or FileName is written
// as a file part.
type Field struct {
	Value       string
	Reader      io.Reader
	FileName    string
	ContentType string
}

type part struct {
	name  string
	field Field
}

// Multipart collects ordered form-data fields and renders them on Build.
type Multipart struct {
	parts    []part
	boundary string
}

func NewMultipart() *Multipart {
	return &Multipart{boundary: boundaryPrefix + uniuri.NewLen(24)}
}

// Fields builds a multipart form from a map, ordering entries by name.
func Fields(fields map[string]Field) *Multipart {
	m := NewMultipart()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Add(name, fields[name])
	}
	return m
}

func (m *Multipart) Add(name string, f Field) *Multipart {
	m.parts = append(m.parts, part{name: name, field: f})
	return m
}

func (m *Multipart) AddValue(name, value string) *Multipart {
	return m.Add(name, Field{Value: value})
}

func (m *Multipart) AddFile(name, fileName string, r io.Reader) *Multipart {
	return m.Add(name, Field{FileName: fileName, Reader: r})
}

func (m *Multipart) Boundary() string {
	return m.boundary
}

func (m *Multipart) Len() int {
	return len(m.parts)
}

// Build renders the payload and the headers that describe it. The headers
// carry the boundary and so must replace any same-named defaults.
func (m *Multipart) Build() ([]byte, *header.Header, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(m.boundary); err != nil {
		return nil, nil, errdef.Wrap(errdef.CodeBody, err, "set multipart boundary")
	}

	for _, p := range m.parts {
		if err := writePart(w, p); err != nil {
			return nil, nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, nil, errdef.Wrap(errdef.CodeBody, err, "close multipart writer")
	}

	h := header.New().
		Set("content-type", w.FormDataContentType()).
		Set("content-length", strconv.Itoa(buf.Len()))
	return buf.Bytes(), h, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writePart(w *multipart.Writer, p part) error {
	f := p.field
	if f.Reader == nil && f.FileName == "" {
		if f.ContentType == "" {
			if err := w.WriteField(p.name, f.Value); err != nil {
				return errdef.Wrap(errdef.CodeBody, err, "write form field %q", p.name)
			}
			return nil
		}
	}

	mh := make(textproto.MIMEHeader)
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.name))
	if f.FileName != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(f.FileName))
	}
	mh.Set("Content-Disposition", disposition)
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	mh.Set("Content-Type", ct)

	pw, err := w.CreatePart(mh)
	if err != nil {
		return errdef.Wrap(errdef.CodeBody, err, "create form part %q", p.name)
	}
	src := f.Reader
	if src == nil {
		src = strings.NewReader(f.Value)
	}
	if _, err := io.Copy(pw, src); err != nil {
		return errdef.Wrap(errdef.CodeBody, err, "copy form part %q", p.name)
	}
	return nil
}
