package claims

import "github.com/tidwall/gjson"

// Document is the raw claims payload returned by the provider's
// resource-owner endpoint. It is never modified, only read via path lookup.
type Document []byte

// Extract returns the string value at the given path, where path addresses
// nested keys with dots (e.g. "data.attributes.email"). The second return
// value reports whether the path exists in the document.
func (d Document) Extract(path string) (string, bool) {
	result := gjson.GetBytes(d, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// Has reports whether the given path exists in the document.
func (d Document) Has(path string) bool {
	return gjson.GetBytes(d, path).Exists()
}
