package gateway

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	maxFormMemory = 32 << 10
	maxArgsBody   = 4 << 10
)

// parseArgs merges query and body arguments into r.Form.
func parseArgs(r *http.Request) {
	if r.Form != nil {
		return
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		_ = r.ParseMultipartForm(maxFormMemory)
	}
	if r.Form == nil {
		_ = r.ParseForm()
	}
}

func hasArg(r *http.Request, name string) bool {
	parseArgs(r)
	_, ok := r.Form[name]
	return ok
}

func argCount(r *http.Request) int {
	parseArgs(r)
	n := 0
	for _, vs := range r.Form {
		n += len(vs)
	}
	return n
}

// firstArg returns "path" argument if present, otherwise the first query
// argument in request order, otherwise any body argument.
func firstArg(r *http.Request) (string, bool) {
	parseArgs(r)
	if vs, ok := r.Form["path"]; ok && len(vs) != 0 {
		return vs[0], true
	}
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 1 {
			return "", true
		}
		v, err := url.QueryUnescape(kv[1])
		if err != nil {
			v = kv[1]
		}
		return v, true
	}
	for _, vs := range r.Form {
		if len(vs) != 0 {
			return vs[0], true
		}
	}
	return "", false
}

func intArg(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(r.Form.Get(name)))
	return v, err == nil
}
