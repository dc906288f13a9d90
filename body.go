package turbofetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
	contentTypeText   = "text/plain; charset=utf-8"

	// UploadField is the multipart field Upload puts the file in.
	UploadField = "file"
)

// Body is the payload of a call. It is one of JSONBody, RawBody, TextBody or
// MultipartBody; a nil Body sends no payload.
type Body interface {
	isBody()
}

type jsonBody struct{ v any }

type rawBody struct {
	data        []byte
	contentType string
}

type multipartBody struct{ form *Form }

func (jsonBody) isBody()      {}
func (rawBody) isBody()       {}
func (multipartBody) isBody() {}

// JSONBody serializes v as JSON and sends it as application/json.
func JSONBody(v any) Body {
	return jsonBody{v: v}
}

// RawBody sends data unchanged. contentType is applied only when the request
// carries no Content-Type header; pass "" to leave headers alone.
func RawBody(data []byte, contentType string) Body {
	return rawBody{data: data, contentType: contentType}
}

// TextBody sends s as text/plain unless a Content-Type is already set.
func TextBody(s string) Body {
	return rawBody{data: []byte(s), contentType: contentTypeText}
}

// MultipartBody sends form as multipart/form-data. Any explicit Content-Type
// header is dropped in favour of the one carrying the form boundary.
func MultipartBody(form *Form) Body {
	return multipartBody{form: form}
}

// File is a single file part of a multipart form.
type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

type formPart struct {
	field string
	value string
	file  *File
}

// Form is an ordered multipart form.
type Form struct {
	parts []formPart
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// AddField appends a text field.
func (f *Form) AddField(name, value string) *Form {
	f.parts = append(f.parts, formPart{field: name, value: value})
	return f
}

// AddFile appends a file part under field.
func (f *Form) AddFile(field string, file File) *Form {
	f.parts = append(f.parts, formPart{field: field, file: &file})
	return f
}

func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range f.parts {
		if p.file == nil {
			if err := w.WriteField(p.field, p.value); err != nil {
				return nil, "", err
			}
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.file.Name))
		ct := p.file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set(contentTypeHeader, ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if p.file.Content != nil {
			if _, err := io.Copy(part, p.file.Content); err != nil {
				return nil, "", fmt.Errorf("read file %q: %w", p.file.Name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// normalizeBody resolves spec.Body into raw bytes and adjusts the headers.
// Multipart is checked first, then structured values, then opaque payloads.
// The result is a rawBody, so normalizing twice is a no-op.
func normalizeBody(spec *RequestSpec) error {
	if spec.Header == nil {
		spec.Header = make(http.Header)
	}
	switch b := spec.Body.(type) {
	case nil:
		return nil
	case multipartBody:
		if b.form == nil {
			b.form = NewForm()
		}
		data, ct, err := b.form.encode()
		if err != nil {
			return err
		}
		spec.Header.Del(contentTypeHeader)
		spec.Header.Set(contentTypeHeader, ct)
		spec.Body = rawBody{data: data}
	case jsonBody:
		data, err := json.Marshal(b.v)
		if err != nil {
			return err
		}
		if !isJSONContentType(spec.Header.Get(contentTypeHeader)) {
			spec.Header.Set(contentTypeHeader, contentTypeJSON)
		}
		spec.Body = rawBody{data: data}
	case rawBody:
		if b.contentType != "" && spec.Header.Get(contentTypeHeader) == "" {
			spec.Header.Set(contentTypeHeader, b.contentType)
		}
		spec.Body = rawBody{data: b.data}
	default:
		return fmt.Errorf("unsupported body type %T", b)
	}
	return nil
}

// isJSONContentType accepts application/json and structured +json types
// such as application/merge-patch+json.
func isJSONContentType(v string) bool {
	if v == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// bodyBytes returns the payload of a normalized spec.
func bodyBytes(spec *RequestSpec) []byte {
	if b, ok := spec.Body.(rawBody); ok {
		return b.data
	}
	return nil
}
