// Package storage keeps user-uploaded files such as profile avatars.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxAvatarBytes caps avatar uploads.
const MaxAvatarBytes = 2 << 20

// ErrInvalidUpload is returned for uploads that are too large or not an image.
var ErrInvalidUpload = errors.New("invalid upload")

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Upload is one file received from a multipart form.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// read validates the upload and buffers it so it can be sent with a known
// length. The stored type comes from the file's leading bytes; a declared
// Content-Type that disagrees with them is rejected.
func (u Upload) read() (data []byte, contentType string, err error) {
	declared := mediaType(u.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		if _, ok := avatarExtensions[declared]; !ok {
			return nil, "", errNotImage
		}
	}
	if u.Size > MaxAvatarBytes {
		return nil, "", errTooLarge
	}
	if u.Body == nil {
		return nil, "", fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(u.Body, MaxAvatarBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	if n > MaxAvatarBytes {
		return nil, "", errTooLarge
	}

	sniffed := mediaType(http.DetectContentType(buf.Bytes()))
	if _, ok := avatarExtensions[sniffed]; !ok {
		return nil, "", errNotImage
	}
	if declared != "" && declared != "application/octet-stream" && declared != sniffed {
		return nil, "", fmt.Errorf("%w: file content is %s, not %s", ErrInvalidUpload, sniffed, declared)
	}
	return buf.Bytes(), sniffed, nil
}

var (
	errNotImage = fmt.Errorf("%w: avatar must be a JPEG, PNG, GIF or WebP image", ErrInvalidUpload)
	errTooLarge = fmt.Errorf("%w: avatar must be 2 MB or smaller", ErrInvalidUpload)
)

func mediaType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

func avatarKey(userID, contentType string, unix int64) string {
	return fmt.Sprintf("%s/avatar-%d.%s", userID, unix, avatarExtensions[contentType])
}

func userPrefix(userID string) string {
	return userID + "/"
}
