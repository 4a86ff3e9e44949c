package nanodc

import (
	"path"
	"strings"
)

// SearchType is the legacy search type category. The numbering matches the
// values peers send in legacy searches.
type SearchType int

const (
	TypeAny SearchType = iota
	TypeAudio
	TypeCompressed
	TypeDocument
	TypeExecutable
	TypePicture
	TypeVideo
	TypeDirectory
	TypeTTH

	// fileTypeCount covers the categories a file can belong to (TypeAny..TypeVideo).
	fileTypeCount = int(TypeVideo) + 1
)

var searchTypeNames = [...]string{"any", "audio", "compressed", "document", "executable", "picture", "video", "directory", "tth"}

func (t SearchType) String() string {
	if t < 0 || int(t) >= len(searchTypeNames) {
		return "unknown"
	}
	return searchTypeNames[t]
}

// ParseSearchType accepts either a type name or its legacy number (1-based
// on the wire, so "1" is any).
func ParseSearchType(s string) (SearchType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range searchTypeNames {
		if s == name {
			return SearchType(i), true
		}
	}
	if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		return SearchType(s[0] - '1'), true
	}
	return TypeAny, false
}

var extensionTypes = map[string]SearchType{}

func init() {
	register := func(t SearchType, exts ...string) {
		for _, ext := range exts {
			extensionTypes[ext] = t
		}
	}
	register(TypeAudio, "mp3", "mp2", "mid", "midi", "wav", "wma", "ogg", "oga", "opus", "flac", "ape", "aac", "m4a", "mpc", "au", "aiff", "ra")
	register(TypeCompressed, "rar", "zip", "ace", "arj", "hqx", "lha", "sea", "tar", "tgz", "z", "bz2", "gz", "xz", "7z", "cab", "zst")
	register(TypeDocument, "htm", "html", "doc", "docx", "txt", "nfo", "pdf", "odt", "rtf", "xls", "xlsx", "ppt", "epub", "md")
	register(TypeExecutable, "exe", "com", "msi", "bat", "cmd", "app", "sh", "apk", "deb", "rpm")
	register(TypePicture, "jpg", "jpeg", "gif", "png", "bmp", "pcx", "tif", "tiff", "webp", "ico", "svg", "psd")
	register(TypeVideo, "mpg", "mpeg", "avi", "asf", "mov", "mkv", "mp4", "m4v", "wmv", "divx", "ogm", "webm", "flv", "rm", "3gp")
}

// fileExtension returns the lower-cased extension without the dot.
func fileExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// TypeOfName classifies a file name by extension. Unknown extensions are TypeAny.
func TypeOfName(name string) SearchType {
	if t, ok := extensionTypes[fileExtension(name)]; ok {
		return t
	}
	return TypeAny
}
