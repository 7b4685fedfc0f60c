package server

import (
	"net/http"
	"os"
)

// fileOnlyFS serves regular files and reports directories as missing, so
// http.FileServer never renders a listing of stored avatars.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// avatarFileServer serves the local avatar directory under prefix.
func avatarFileServer(dir, prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(fileOnlyFS{fs: http.Dir(dir)}))
}
