package assetloader

// Resolver types, used for logging and metrics
const (
	LoadPathType = "loadpath"
	RuntimeType  = "runtime"
	WorkDirType  = "workdir"
)

// File is a single file that makes up a resolved asset
type File struct {
	// Name is the file name. For directory assets it is the slash-separated
	// path relative to the asset directory, e.g. models/User.json
	Name string

	// Data is the raw file content
	Data []byte
}

// Resolved contains the raw result of resolving an asset
type Resolved struct {
	// Name is the asset base name that was requested
	Name string

	// Source describes where the asset was found (for logging/debugging)
	Source string

	// Dir is true when the asset is a directory of files
	Dir bool

	// Files holds the asset content. A file asset has exactly one entry.
	// Directory entries are in lexical walk order.
	Files []File
}

// Resolver locates a generated asset in one location
type Resolver interface {
	// Resolve locates and reads the asset with the given base name
	Resolve(name string) (*Resolved, error)

	// Type returns the type of resolver (for logging and metrics)
	Type() string
}
