package gateway

import "strings"

var contentTypes = []struct{ ext, ctype string }{
	{".htm", "text/html"},
	{".html", "text/html"},
	{".css", "text/css"},
	{".js", "application/javascript"},
	{".png", "image/png"},
	{".gif", "image/gif"},
	{".jpg", "image/jpeg"},
	{".ico", "image/x-icon"},
	{".xml", "text/xml"},
	{".pdf", "application/x-pdf"},
	{".zip", "application/x-zip"},
	{".gz", "application/x-gzip"},
}

func contentType(name string, download bool) string {
	if download {
		return "application/octet-stream"
	}
	for _, ct := range contentTypes {
		if strings.HasSuffix(name, ct.ext) {
			return ct.ctype
		}
	}
	return "text/plain"
}
