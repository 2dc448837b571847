package assetloader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing/fstest"

	"cuelang.org/go/cue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingFS records every Open so tests can assert that nothing was read
type countingFS struct {
	fs.FS
	opens int
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens++
	return c.FS.Open(name)
}

func writeAsset(dir, name, content string) {
	GinkgoHelper()
	Expect(os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)).To(Succeed())
}

func lookupString(v cue.Value, p string) string {
	GinkgoHelper()
	s, err := v.LookupPath(cue.ParsePath(p)).String()
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Loader", func() {
	var (
		runtimeFS *countingFS
		workDir   string
		config    Config
	)

	BeforeEach(func() {
		runtimeFS = &countingFS{FS: fstest.MapFS{}}
		workDir = GinkgoT().TempDir()
		config = DefaultConfig()
		config.RuntimeFS = runtimeFS
		config.WorkDir = workDir
	})

	Context("Load", func() {
		It("returns a supplied model meta unchanged without resolving", func() {
			meta := &ModelMeta{Asset: Asset{Name: ModelMetaName, Source: "caller"}}

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{ModelMeta: meta})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.ModelMeta).To(BeIdenticalTo(meta))
			Expect(bundle.ZodSchemas).To(BeNil())
			Expect(runtimeFS.opens).To(BeZero())
		})

		It("returns supplied zod schemas unchanged", func() {
			meta := &ModelMeta{Asset: Asset{Name: ModelMetaName}}
			schemas := &SchemaSet{Asset: Asset{Name: ZodSchemasName}}

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{
				ModelMeta:         meta,
				ZodSchemas:        schemas,
				DefaultZodSchemas: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.ZodSchemas).To(BeIdenticalTo(schemas))
			Expect(runtimeFS.opens).To(BeZero())
		})

		It("resolves model meta from the load path", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "model-meta.json", `{"models": {"user": {"name": "User"}}}`)

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{LoadPath: loadPath})
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(bundle.ModelMeta.Value, "models.user.name")).To(Equal("User"))
			Expect(bundle.ZodSchemas).To(BeNil())
		})

		It("omits schemas when they are not requested, even if none exist", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "model-meta.json", `{}`)

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{LoadPath: loadPath})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.ZodSchemas).To(BeNil())
		})

		It("fails when default schemas are requested and none can be resolved", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "model-meta.json", `{}`)

			_, err := NewLoaderWithConfig(config).Load(LoadOptions{LoadPath: loadPath, DefaultZodSchemas: true})
			Expect(err).To(MatchError(ErrZodSchemasUnavailable))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
		})

		It("loads default schemas from the load path", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "model-meta.json", `{}`)
			writeAsset(loadPath, "zod/User.json", `{"type": "object"}`)

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{LoadPath: loadPath, DefaultZodSchemas: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.ZodSchemas).NotTo(BeNil())

			user, ok := bundle.ZodSchemas.Schema("User")
			Expect(ok).To(BeTrue())
			Expect(lookupString(user, "type")).To(Equal("object"))
		})

		It("propagates the model meta error", func() {
			_, err := NewLoaderWithConfig(config).Load(LoadOptions{LoadPath: GinkgoT().TempDir()})
			Expect(err).To(MatchError(ErrModelMetaUnavailable))
		})
	})

	Context("ResolveModelMeta", func() {
		It("resolves from the runtime location", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/model-meta.json": &fstest.MapFile{Data: []byte(`{"source": "runtime"}`)},
			}

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.Name).To(Equal(ModelMetaName))
			Expect(meta.Source).To(Equal("runtime://.zenstack/model-meta.json"))
			Expect(lookupString(meta.Value, "source")).To(Equal("runtime"))
		})

		It("honors a custom runtime root", func() {
			runtimeFS.FS = fstest.MapFS{
				"gen/model-meta.cue": &fstest.MapFile{Data: []byte(`source: "custom"`)},
			}
			config.RuntimeRoot = "gen"

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(meta.Value, "source")).To(Equal("custom"))
		})

		It("fails with a remediation hint when nothing resolves and test mode is off", func() {
			writeAsset(workDir, "node_modules/.zenstack/model-meta.json", `{}`)

			_, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).To(MatchError(ErrModelMetaUnavailable))
			Expect(err.Error()).To(ContainSubstring(`"zenstack generate"`))

			var unavailableErr *UnavailableError
			Expect(errors.As(err, &unavailableErr)).To(BeTrue())
			Expect(unavailableErr.Asset).To(Equal(ModelMetaName))
		})

		It("falls back to the working directory in test mode", func() {
			writeAsset(workDir, "node_modules/.zenstack/model-meta.json", `{"source": "workdir"}`)
			config.TestMode = true

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(meta.Value, "source")).To(Equal("workdir"))
		})

		It("prefers the runtime location over the test-mode fallback", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/model-meta.json": &fstest.MapFile{Data: []byte(`{"source": "runtime"}`)},
			}
			writeAsset(workDir, "node_modules/.zenstack/model-meta.json", `{"source": "workdir"}`)
			config.TestMode = true

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(meta.Value, "source")).To(Equal("runtime"))
		})

		It("falls back when the runtime asset cannot be decoded", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/model-meta.json": &fstest.MapFile{Data: []byte(`{"broken": `)},
			}
			writeAsset(workDir, "node_modules/.zenstack/model-meta.json", `{"source": "workdir"}`)
			config.TestMode = true

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(meta.Value, "source")).To(Equal("workdir"))
		})

		It("never leaves an explicit load path for the default locations", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/model-meta.json": &fstest.MapFile{Data: []byte(`{"source": "runtime"}`)},
			}
			writeAsset(workDir, "node_modules/.zenstack/model-meta.json", `{"source": "workdir"}`)
			config.TestMode = true

			_, err := NewLoaderWithConfig(config).ResolveModelMeta(GinkgoT().TempDir())
			Expect(err).To(MatchError(ErrModelMetaUnavailable))
			Expect(runtimeFS.opens).To(BeZero())
		})

		It("uses the process working directory when none is configured", func() {
			dir := GinkgoT().TempDir()
			writeAsset(dir, "node_modules/.zenstack/model-meta.json", `{"source": "cwd"}`)
			wd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(dir)).To(Succeed())
			DeferCleanup(os.Chdir, wd)

			config.WorkDir = ""
			config.TestMode = true

			meta, err := NewLoaderWithConfig(config).ResolveModelMeta("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(meta.Value, "source")).To(Equal("cwd"))
		})
	})

	Context("ResolvePolicy", func() {
		It("resolves from the load path", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "policy.yaml", "guard:\n  user:\n    read: true\n")

			policy, err := NewLoaderWithConfig(config).ResolvePolicy(loadPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(policy.Name).To(Equal(PolicyName))
			read, err := policy.Value.LookupPath(cue.ParsePath("guard.user.read")).Bool()
			Expect(err).NotTo(HaveOccurred())
			Expect(read).To(BeTrue())
		})

		It("follows the same fallback chain as model meta", func() {
			writeAsset(workDir, "node_modules/.zenstack/policy.json", `{"source": "workdir"}`)
			config.TestMode = true

			policy, err := NewLoaderWithConfig(config).ResolvePolicy("")
			Expect(err).NotTo(HaveOccurred())
			Expect(lookupString(policy.Value, "source")).To(Equal("workdir"))
		})

		It("fails with its own error", func() {
			_, err := NewLoaderWithConfig(config).ResolvePolicy("")
			Expect(err).To(MatchError(ErrPolicyUnavailable))
			Expect(errors.Is(err, ErrModelMetaUnavailable)).To(BeFalse())
		})
	})

	Context("ResolveZodSchemas", func() {
		It("returns nothing without error when schemas are absent", func() {
			config.TestMode = true

			schemas, err := NewLoaderWithConfig(config).ResolveZodSchemas("")
			Expect(err).NotTo(HaveOccurred())
			Expect(schemas).To(BeNil())
		})

		It("splits a single schema file into models", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/zod.json": &fstest.MapFile{Data: []byte(`{"User": {"type": "object"}, "Post": {"type": "object"}}`)},
			}

			schemas, err := NewLoaderWithConfig(config).ResolveZodSchemas("")
			Expect(err).NotTo(HaveOccurred())
			Expect(schemas.Models).To(HaveLen(2))
			Expect(schemas.Models).To(HaveKey("Post"))

			_, ok := schemas.Schema("Comment")
			Expect(ok).To(BeFalse())
		})

		It("keeps a schema file that is not a struct as an opaque value", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/zod.json": &fstest.MapFile{Data: []byte(`[1, 2, 3]`)},
			}

			schemas, err := NewLoaderWithConfig(config).ResolveZodSchemas("")
			Expect(err).NotTo(HaveOccurred())
			Expect(schemas).NotTo(BeNil())
			Expect(schemas.Models).To(BeNil())
			Expect(schemas.Value.Kind()).To(Equal(cue.ListKind))

			_, ok := schemas.Schema("User")
			Expect(ok).To(BeFalse())
		})

		It("loads a schema file that is not a struct when default schemas are required", func() {
			runtimeFS.FS = fstest.MapFS{
				".zenstack/model-meta.json": &fstest.MapFile{Data: []byte(`{}`)},
				".zenstack/zod.json":        &fstest.MapFile{Data: []byte(`"schemas"`)},
			}

			bundle, err := NewLoaderWithConfig(config).Load(LoadOptions{DefaultZodSchemas: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.ZodSchemas).NotTo(BeNil())
			Expect(bundle.ZodSchemas.Value.Kind()).To(Equal(cue.StringKind))
		})

		It("nests schemas from subdirectories by directory name", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "zod/models/User.json", `{"type": "object"}`)
			writeAsset(loadPath, "zod/input/UserCreate.yaml", "type: object\n")

			schemas, err := NewLoaderWithConfig(config).ResolveZodSchemas(loadPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(schemas).NotTo(BeNil())
			Expect(schemas.Models).To(HaveLen(2))
			Expect(schemas.Models).To(HaveKey("models"))
			Expect(lookupString(schemas.Value, "models.User.type")).To(Equal("object"))
			Expect(lookupString(schemas.Value, "input.UserCreate.type")).To(Equal("object"))
		})

		It("reports unreadable schemas only as absence", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "zod.json", `{"User": `)

			schemas, err := NewLoaderWithConfig(config).ResolveZodSchemas(loadPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(schemas).To(BeNil())
		})
	})

	Context("configuration", func() {
		It("returns values from one CUE context across calls", func() {
			loadPath := GinkgoT().TempDir()
			writeAsset(loadPath, "model-meta.json", `{"models": {"user": {"name": "User"}}}`)
			writeAsset(loadPath, "policy.json", `{"guard": {"user": "allow"}}`)

			loader := NewLoaderWithConfig(config)
			meta, err := loader.ResolveModelMeta(loadPath)
			Expect(err).NotTo(HaveOccurred())
			policy, err := loader.ResolvePolicy(loadPath)
			Expect(err).NotTo(HaveOccurred())

			Expect(meta.Value.Context()).To(BeIdenticalTo(loader.decoder.Context()))
			Expect(policy.Value.Context()).To(BeIdenticalTo(loader.decoder.Context()))

			combined := meta.Value.Unify(policy.Value)
			Expect(combined.Err()).NotTo(HaveOccurred())
			Expect(lookupString(combined, "models.user.name")).To(Equal("User"))
			Expect(lookupString(combined, "guard.user")).To(Equal("allow"))
		})

		It("fills defaults for an empty config", func() {
			loader := NewLoaderWithConfig(Config{})
			Expect(loader.config.RuntimeRoot).To(Equal(DefaultRuntimeRoot))
			Expect(loader.log.GetSink()).NotTo(BeNil())
		})

		It("reads test mode from the environment", func() {
			DeferCleanup(os.Unsetenv, TestModeEnvVar)

			Expect(os.Setenv(TestModeEnvVar, "1")).To(Succeed())
			Expect(TestModeFromEnv()).To(BeTrue())

			Expect(os.Setenv(TestModeEnvVar, "true")).To(Succeed())
			Expect(TestModeFromEnv()).To(BeFalse())
		})
	})
})
