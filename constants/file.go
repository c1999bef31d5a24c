package constants

import (
	"path/filepath"
	"strings"
)

// mimeByExt maps normalized extensions to the MIME type sent to providers.
var mimeByExt = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEForReference infers the MIME type of an image reference from its
// filename extension. Unknown extensions fall back to image/jpeg, which is
// what phone cameras produce in practice.
func MIMEForReference(ref string) string {
	if mt, ok := mimeByExt[NormalizeExt(filepath.Ext(ref))]; ok {
		return mt
	}
	return "image/jpeg"
}
