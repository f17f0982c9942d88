// Package firmware resolves firmware images by name from a directory, the
// way the kernel firmware loader does from /lib/firmware.
package firmware

import (
	"io/fs"
	"os"
	"path"
	"strings"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
)

// Source loads raw firmware images.
type Source interface {
	Load(name string) ([]byte, error)
}

// Dir is a Source backed by a file system tree.
type Dir struct {
	fsys fs.FS
}

// NewDir serves images below root on the host file system.
func NewDir(root string) *Dir { return &Dir{fsys: os.DirFS(root)} }

// NewFS serves images from any fs.FS, e.g. an embed.FS.
func NewFS(fsys fs.FS) *Dir { return &Dir{fsys: fsys} }

// Load reads name, defaulting to rsmu.DefaultFirmwareName. Names must stay
// inside the directory.
func (d *Dir) Load(name string) ([]byte, error) {
	const op = "firmware_load"
	if name == "" {
		name = rsmu.DefaultFirmwareName
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if !fs.ValidPath(name) || name == "." {
		return nil, errcode.Invalid(op, "bad firmware name "+name)
	}
	b, err := fs.ReadFile(d.fsys, name)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidArgument, Op: op, Msg: name, Err: err}
	}
	if len(b) == 0 {
		return nil, &errcode.E{C: errcode.MalformedFirmware, Op: op, Msg: name + ": empty image"}
	}
	return b, nil
}
