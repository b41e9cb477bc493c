package storage

import (
	"path"
	"strings"
)

const maxNameLen = 120

// ArchiveKey is the object key for an archived original. Keys group by
// the album's Drive folder so one album can be listed by prefix.
func ArchiveKey(folderID, fileID, fileName string) string {
	return path.Join("albums", SanitizeName(folderID), SanitizeName(fileID)+"-"+SanitizeName(fileName))
}

// SanitizeName keeps letters, digits, dot, dash and underscore. Anything
// else becomes '_'. Path separators never survive.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
