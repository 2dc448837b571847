package assetloader

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// TestModeEnvVar enables the working directory fallback when set to "1".
// It is read only by TestModeFromEnv; the loader itself takes Config.TestMode.
const TestModeEnvVar = "ZENSTACK_TEST"

// Config contains configuration for the asset loader
type Config struct {
	// RuntimeFS holds the runtime's default location, e.g. an embedded
	// filesystem or a ConfigMap filesystem.
	// Default: the directory of the running executable
	RuntimeFS fs.FS

	// RuntimeRoot is the generated output directory inside RuntimeFS
	// Default: .zenstack
	RuntimeRoot string

	// WorkDir is the project directory searched in test mode
	// Default: the process working directory at resolve time
	WorkDir string

	// TestMode enables resolving from WorkDir when no load path is given
	// and the runtime location has no asset
	TestMode bool

	// Logger receives V(1) outcomes and V(2) failed attempts
	Logger logr.Logger
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		RuntimeRoot: DefaultRuntimeRoot,
		Logger:      log.Log.WithName("assetloader"),
	}
}

// TestModeFromEnv reports whether ZENSTACK_TEST is set to "1"
func TestModeFromEnv() bool {
	return os.Getenv(TestModeEnvVar) == "1"
}

// Loader resolves and decodes generated assets. Each call is independent;
// the loader keeps no reference to the assets it returns.
// A Loader shares one CUE context across calls and must not be used from
// multiple goroutines.
type Loader struct {
	config  Config
	decoder *Decoder
	log     logr.Logger
}

// NewLoader creates a loader with the default configuration
func NewLoader() *Loader {
	return NewLoaderWithConfig(DefaultConfig())
}

// NewLoaderWithConfig creates a loader with the given configuration
func NewLoaderWithConfig(cfg Config) *Loader {
	if cfg.RuntimeRoot == "" {
		cfg.RuntimeRoot = DefaultRuntimeRoot
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = log.Log.WithName("assetloader")
	}

	return &Loader{
		config:  cfg,
		decoder: NewDecoder(),
		log:     cfg.Logger,
	}
}

// Load returns the model metadata and, when requested, the zod schemas.
// Values supplied in opts are returned unchanged without touching disk.
func (l *Loader) Load(opts LoadOptions) (*Bundle, error) {
	meta := opts.ModelMeta
	if meta == nil {
		resolved, err := l.ResolveModelMeta(opts.LoadPath)
		if err != nil {
			return nil, err
		}
		meta = resolved
	}

	var schemas *SchemaSet
	switch {
	case opts.ZodSchemas != nil:
		schemas = opts.ZodSchemas

	case opts.DefaultZodSchemas:
		resolved, cause := l.resolveZodSchemas(opts.LoadPath)
		if resolved == nil {
			RecordUnavailable(ZodSchemasName)
			return nil, unavailable(ZodSchemasName, cause)
		}
		schemas = resolved
	}

	return &Bundle{
		ModelMeta:  meta,
		ZodSchemas: schemas,
	}, nil
}

// ResolveModelMeta loads the model metadata from loadPath, or from the
// default location when loadPath is empty
func (l *Loader) ResolveModelMeta(loadPath string) (*ModelMeta, error) {
	asset, err := l.resolve(ModelMetaName, loadPath)
	if err != nil {
		RecordUnavailable(ModelMetaName)
		l.log.V(1).Info("Model meta unavailable", "loadPath", loadPath, "error", err.Error())
		return nil, unavailable(ModelMetaName, err)
	}
	return &ModelMeta{Asset: *asset}, nil
}

// ResolvePolicy loads the access policy definition from loadPath, or from
// the default location when loadPath is empty
func (l *Loader) ResolvePolicy(loadPath string) (*PolicyDef, error) {
	asset, err := l.resolve(PolicyName, loadPath)
	if err != nil {
		RecordUnavailable(PolicyName)
		l.log.V(1).Info("Policy definition unavailable", "loadPath", loadPath, "error", err.Error())
		return nil, unavailable(PolicyName, err)
	}
	return &PolicyDef{Asset: *asset}, nil
}

// ResolveZodSchemas loads the zod schema set from loadPath, or from the
// default location when loadPath is empty. Schemas are optional: absence,
// including unreadable or undecodable files, is reported only as a nil
// set. The returned error is always nil.
func (l *Loader) ResolveZodSchemas(loadPath string) (*SchemaSet, error) {
	set, _ := l.resolveZodSchemas(loadPath)
	return set, nil
}

// resolveZodSchemas returns the schema set, or nil and the last attempt's error
func (l *Loader) resolveZodSchemas(loadPath string) (*SchemaSet, error) {
	asset, err := l.resolve(ZodSchemasName, loadPath)
	if err != nil {
		l.log.V(1).Info("Zod schemas not found", "loadPath", loadPath, "error", err.Error())
		return nil, err
	}

	// Models is only an index; a non-struct schema set is returned as is
	byModel, err := models(asset.Value)
	if err != nil {
		l.log.V(2).Info("Zod schemas are not keyed by model", "source", asset.Source, "error", err.Error())
	}
	return &SchemaSet{Asset: *asset, Models: byModel}, nil
}

// resolve walks the resolver chain for loadPath and returns the first
// asset that resolves and decodes. Only the last failure is kept.
func (l *Loader) resolve(name, loadPath string) (*Asset, error) {
	chain, err := l.resolvers(loadPath)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, r := range chain {
		start := time.Now()
		asset, err := l.attempt(r, name)
		duration := time.Since(start).Seconds()

		if err != nil {
			RecordResolve(name, r.Type(), "error", duration)
			l.log.V(2).Info("Asset resolution attempt failed", "asset", name, "resolver", r.Type(), "error", err.Error())
			lastErr = err
			continue
		}

		RecordResolve(name, r.Type(), "success", duration)
		l.log.V(1).Info("Resolved asset", "asset", name, "resolver", r.Type(),
			"source", asset.Source, "digest", asset.Digest)
		return asset, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no location configured for asset %s", name)
	}
	return nil, lastErr
}

func (l *Loader) attempt(r Resolver, name string) (*Asset, error) {
	res, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return l.decoder.Decode(res)
}

// resolvers returns the ordered resolution chain for loadPath.
// An explicit load path is the only location tried for it. Otherwise the
// runtime location comes first, followed by the working directory in test mode.
func (l *Loader) resolvers(loadPath string) ([]Resolver, error) {
	if loadPath != "" {
		r, err := NewLoadPathResolver(loadPath)
		if err != nil {
			return nil, err
		}
		return []Resolver{r}, nil
	}

	runtimeFS := l.config.RuntimeFS
	if runtimeFS == nil {
		runtimeFS = executableFS()
	}
	chain := []Resolver{NewRuntimeResolver(runtimeFS, l.config.RuntimeRoot)}

	if l.config.TestMode {
		dir := l.config.WorkDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				l.log.V(2).Info("Skipping working directory fallback", "error", err.Error())
				return chain, nil
			}
			dir = wd
		}

		r, err := NewWorkDirResolver(dir)
		if err != nil {
			l.log.V(2).Info("Skipping working directory fallback", "error", err.Error())
			return chain, nil
		}
		chain = append(chain, r)
	}

	return chain, nil
}
