// Package serve renders directory listings and single files for the
// http server
package serve

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/corsserve/corsserve/fs"
)

// Sort orders understood by ProcessQueryParams
const (
	SortByName         = "name"
	SortByNameDirFirst = "namedirfirst"
	SortBySize         = "size"
	SortByTime         = "time"
)

// Orders understood by ProcessQueryParams
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DirEntry is a directory entry
type DirEntry struct {
	URL     string
	Leaf    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Directory represents a directory
type Directory struct {
	DirRemote    string
	Title        string
	Entries      []DirEntry
	Query        string
	HTMLTemplate *template.Template
	Sort         string
	Order        string
}

// NewDirectory makes an empty Directory
func NewDirectory(dirRemote string, htmlTemplate *template.Template) *Directory {
	d := &Directory{
		DirRemote:    dirRemote,
		Title:        fmt.Sprintf("Directory listing of /%s", dirRemote),
		HTMLTemplate: htmlTemplate,
		Sort:         SortByName,
		Order:        OrderAsc,
	}
	return d
}

// SetQuery sets the query parameters for each URL
func (d *Directory) SetQuery(queryParams url.Values) *Directory {
	d.Query = ""
	if len(queryParams) > 0 {
		d.Query = "?" + queryParams.Encode()
	}
	return d
}

// urlPathEscape escapes a relative path so it can't be mistaken for a
// URL with a scheme, eg "a:b" becomes "./a:b"
func urlPathEscape(in string) string {
	u := url.URL{Path: in}
	return u.String()
}

// AddHTMLEntry adds an entry to that directory
func (d *Directory) AddHTMLEntry(remote string, isDir bool, size int64, modTime time.Time) {
	leaf := path.Base(remote)
	if leaf == "." {
		leaf = ""
	}
	urlRemote := leaf
	if isDir {
		leaf += "/"
		urlRemote += "/"
	}
	d.Entries = append(d.Entries, DirEntry{
		URL:     urlPathEscape(urlRemote) + d.Query,
		Leaf:    leaf,
		IsDir:   isDir,
		Size:    size,
		ModTime: modTime,
	})
}

// Error returns an http.StatusInternalServerError and logs the error
func Error(what interface{}, w http.ResponseWriter, text string, err error) {
	fs.Errorf(what, "%s: %v", text, err)
	http.Error(w, text+".", http.StatusInternalServerError)
}

// sortName is the name entries are compared on
func sortName(e DirEntry) string {
	return strings.ToLower(strings.TrimSuffix(e.Leaf, "/"))
}

// ProcessQueryParams sorts the entries as asked for by the sort and
// order query parameters.
//
// Entries are always put in namedirfirst order first so that the size
// and time orders fall back to it for equal values. Unknown values
// select name and asc.
func (d *Directory) ProcessQueryParams(sortParm, orderParm string) *Directory {
	sort.SliceStable(d.Entries, func(i, j int) bool {
		a, b := d.Entries[i], d.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return sortName(a) < sortName(b)
	})

	var less func(a, b DirEntry) bool
	switch sortParm {
	case SortByNameDirFirst:
	case SortBySize:
		less = func(a, b DirEntry) bool { return a.Size < b.Size }
	case SortByTime:
		less = func(a, b DirEntry) bool { return a.ModTime.Before(b.ModTime) }
	default:
		sortParm = SortByName
		less = func(a, b DirEntry) bool { return sortName(a) < sortName(b) }
	}
	if less != nil {
		sort.SliceStable(d.Entries, func(i, j int) bool {
			return less(d.Entries[i], d.Entries[j])
		})
	}

	if orderParm == OrderDesc {
		for i, j := 0, len(d.Entries)-1; i < j; i, j = i+1, j-1 {
			d.Entries[i], d.Entries[j] = d.Entries[j], d.Entries[i]
		}
	} else {
		orderParm = OrderAsc
	}

	d.Sort = sortParm
	d.Order = orderParm
	return d
}

// Serve serves a directory
func (d *Directory) Serve(w http.ResponseWriter, r *http.Request) {
	fs.Infof(d.DirRemote, "%s: Serving directory", r.RemoteAddr)

	var buf bytes.Buffer
	err := d.HTMLTemplate.Execute(&buf, d)
	if err != nil {
		Error(d.DirRemote, w, "Failed to render template", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	_, err = buf.WriteTo(w)
	if err != nil {
		fs.Debugf(d.DirRemote, "Failed to write directory listing: %v", err)
	}
}
