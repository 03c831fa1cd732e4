package serve

import (
	"net/http"
	"os"

	"github.com/corsserve/corsserve/fs"
	"github.com/spf13/afero"
)

// File serves the file name from f, setting the Content-Type from
// mimeTypes.
//
// Only GET and HEAD are allowed. Conditional and Range requests are
// answered by http.ServeContent.
func File(w http.ResponseWriter, r *http.Request, f afero.Fs, name string, mimeTypes *fs.MimeTable) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	in, err := f.Open(name)
	if os.IsNotExist(err) {
		fs.Infof(name, "%s: File not found", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	} else if os.IsPermission(err) {
		fs.Infof(name, "%s: Permission denied", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	} else if err != nil {
		Error(name, w, "Failed to open file", err)
		return
	}
	defer func() {
		err := in.Close()
		if err != nil {
			fs.Errorf(name, "Failed to close file: %v", err)
		}
	}()

	info, err := in.Stat()
	if err != nil {
		Error(name, w, "Failed to stat file", err)
		return
	}
	if info.IsDir() {
		http.Error(w, "Not a file", http.StatusNotFound)
		return
	}

	mimeType, err := mimeTypes.FromContent(name, in)
	if err != nil {
		Error(name, w, "Failed to read file", err)
		return
	}
	w.Header().Set("Content-Type", mimeType)

	fs.Debugf(name, "%s: Serving file as %s", r.RemoteAddr, mimeType)
	http.ServeContent(w, r, name, info.ModTime(), in)
}
