package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// File はマルチパートフォームに添付するファイル。
type File struct {
	// FieldName はフォームのフィールド名。
	FieldName string
	// FileName は送信するファイル名。
	FileName string
	// ContentType はファイルのMIMEタイプ。空の場合は application/octet-stream になる。
	ContentType string
	// Content はファイルの内容。
	Content io.Reader
}

type formField struct {
	name  string
	value string
}

// Form はマルチパート形式のリクエストボディ。
// フィールドとファイルは追加した順に書き出す。
type Form struct {
	fields []formField
	files  []File
}

// NewForm は空のマルチパートフォームを生成する。
func NewForm() *Form {
	return &Form{}
}

// AddField はテキストフィールドを追加する。
func (f *Form) AddField(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddFile はファイルを追加する。
func (f *Form) AddFile(file File) *Form {
	f.files = append(f.files, file)
	return f
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode はフォームをマルチパートボディに書き出し、境界文字列を含むContent-Typeとともに返す。
func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("フォームフィールドの書き込みに失敗: %w", err)
		}
	}

	for _, file := range f.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(file.FieldName), quoteEscaper.Replace(file.FileName)))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("フォームファイルの作成に失敗: %w", err)
		}
		if file.Content != nil {
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", fmt.Errorf("フォームファイルの書き込みに失敗: %w", err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("マルチパートボディの終端に失敗: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
