package id

import "github.com/teris-io/shortid"

// ShortId generates a short unique id, used for request correlation.
func ShortId() string {
	sid, err := shortid.Generate()
	if err != nil {
		return ""
	}
	return sid
}
