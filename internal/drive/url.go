package drive

import "strings"

// fileIDMarkers are tried in order against a Drive or Docs URL.
var fileIDMarkers = []string{"/d/", "id=", "/file/d/"}

// ExtractFileID pulls the file id out of a Drive/Docs share URL such as
// https://docs.google.com/document/d/FILE_ID/edit or https://drive.google.com/open?id=FILE_ID.
func ExtractFileID(rawURL string) (string, bool) {
	for _, marker := range fileIDMarkers {
		i := strings.Index(rawURL, marker)
		if i < 0 {
			continue
		}
		rest := rawURL[i+len(marker):]
		if end := strings.IndexAny(rest, "/?&#"); end >= 0 {
			rest = rest[:end]
		}
		id := strings.Trim(rest, "/")
		if id != "" {
			return id, true
		}
	}
	return "", false
}

// ResolveFileID accepts either a share URL or a bare file id.
func ResolveFileID(input string) string {
	input = strings.TrimSpace(input)
	if id, ok := ExtractFileID(input); ok {
		return id
	}
	return input
}
