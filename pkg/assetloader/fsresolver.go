package assetloader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// DefaultRuntimeRoot is the generated output directory relative to the runtime location
	DefaultRuntimeRoot = ".zenstack"

	// DependencyDir is where the generator's runtime package is installed
	// relative to a project's working directory
	DependencyDir = "node_modules"
)

// candidateExts are tried in order after the asset base name.
// The empty extension matches an extensionless file or a directory.
var candidateExts = []string{".json", ".cue", ".yaml", ".yml", ""}

// FSResolver resolves assets below a root directory of a filesystem
type FSResolver struct {
	typ  string
	fsys fs.FS
	root string

	// base is the absolute OS directory behind fsys, empty for
	// filesystems that are not backed by a directory
	base string
}

// NewLoadPathResolver creates a resolver for a caller-supplied load path.
// Relative paths are resolved against the working directory.
func NewLoadPathResolver(loadPath string) (*FSResolver, error) {
	if loadPath == "" {
		return nil, fmt.Errorf("load path is empty")
	}
	abs, err := filepath.Abs(loadPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve load path %s: %w", loadPath, err)
	}
	return &FSResolver{
		typ:  LoadPathType,
		fsys: os.DirFS(abs),
		root: ".",
		base: abs,
	}, nil
}

// NewRuntimeResolver creates a resolver for the runtime's default location.
// fsys is typically an embedded filesystem, a ConfigMap filesystem or the
// directory holding the running executable.
func NewRuntimeResolver(fsys fs.FS, root string) *FSResolver {
	if root == "" {
		root = DefaultRuntimeRoot
	}
	return &FSResolver{
		typ:  RuntimeType,
		fsys: fsys,
		root: root,
	}
}

// NewWorkDirResolver creates the test-mode resolver that looks for the
// generated output inside the dependency directory of dir
func NewWorkDirResolver(dir string) (*FSResolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory %s: %w", dir, err)
	}
	return &FSResolver{
		typ:  WorkDirType,
		fsys: os.DirFS(abs),
		root: path.Join(DependencyDir, DefaultRuntimeRoot),
		base: abs,
	}, nil
}

// Type returns the resolver type
func (r *FSResolver) Type() string {
	return r.typ
}

// Resolve locates the asset named name below the resolver root.
// Candidates are name.json, name.cue, name.yaml, name.yml, then name
// itself as a plain file or a directory of asset files.
func (r *FSResolver) Resolve(name string) (*Resolved, error) {
	if name == "" {
		return nil, fmt.Errorf("asset name is empty")
	}
	if r.fsys == nil {
		return nil, fmt.Errorf("no filesystem configured for %s resolver", r.typ)
	}

	var lastErr error
	for _, ext := range candidateExts {
		p := path.Join(r.root, name+ext)

		info, err := fs.Stat(r.fsys, p)
		if err != nil {
			lastErr = err
			continue
		}

		if info.IsDir() {
			if ext != "" {
				continue
			}
			return r.resolveDir(name, p)
		}

		data, err := fs.ReadFile(r.fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", r.source(p), err)
		}

		return &Resolved{
			Name:   name,
			Source: r.source(p),
			Files:  []File{{Name: path.Base(p), Data: data}},
		}, nil
	}

	return nil, fmt.Errorf("asset %s not found at %s: %w", name, r.source(path.Join(r.root, name)), lastErr)
}

// resolveDir reads all asset files below dir. Subdirectories are walked
// recursively; file names are kept relative to dir.
func (r *FSResolver) resolveDir(name, dir string) (*Resolved, error) {
	var files []File

	err := fs.WalkDir(r.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden directories and files
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() || !isAssetFile(d.Name()) {
			return nil
		}

		data, err := fs.ReadFile(r.fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", r.source(p), err)
		}
		files = append(files, File{Name: strings.TrimPrefix(p, dir+"/"), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.source(dir), err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no asset files found in %s", r.source(dir))
	}

	return &Resolved{
		Name:   name,
		Source: r.source(dir),
		Dir:    true,
		Files:  files,
	}, nil
}

// source renders p as a location for logs and Asset.Source
func (r *FSResolver) source(p string) string {
	if r.base != "" {
		return "file://" + filepath.ToSlash(filepath.Join(r.base, filepath.FromSlash(p)))
	}
	return fmt.Sprintf("%s://%s", r.typ, p)
}

// isAssetFile reports whether name has a decodable extension
func isAssetFile(name string) bool {
	switch path.Ext(name) {
	case ".json", ".cue", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// executableFS returns the directory of the running executable as a
// filesystem, or nil when it cannot be determined
func executableFS() fs.FS {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return os.DirFS(filepath.Dir(exe))
}
