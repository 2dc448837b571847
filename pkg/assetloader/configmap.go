package assetloader

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ConfigMapDirSeparator separates directory levels in ConfigMap keys,
// which cannot contain "/". The key "zod__User.json" becomes "zod/User.json".
const ConfigMapDirSeparator = "__"

// NewConfigMapFS reads a ConfigMap holding generated assets and returns
// its data as a filesystem rooted like the runtime location, so that it
// can be used as Config.RuntimeFS. root defaults to DefaultRuntimeRoot.
// The ConfigMap is read once; later changes are not observed.
func NewConfigMapFS(ctx context.Context, c client.Reader, key client.ObjectKey, root string) (fs.FS, error) {
	if key.Name == "" {
		return nil, fmt.Errorf("ConfigMap name is empty")
	}
	if root == "" {
		root = DefaultRuntimeRoot
	}

	cm := &corev1.ConfigMap{}
	if err := c.Get(ctx, key, cm); err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s: %w", key, err)
	}

	return configMapFS(cm, root)
}

// configMapFS converts ConfigMap data and binary data into a filesystem
func configMapFS(cm *corev1.ConfigMap, root string) (fs.FS, error) {
	if len(cm.Data) == 0 && len(cm.BinaryData) == 0 {
		return nil, fmt.Errorf("ConfigMap %s/%s has no data", cm.Namespace, cm.Name)
	}

	files := fstest.MapFS{}
	for key, value := range cm.Data {
		files[configMapPath(root, key)] = &fstest.MapFile{Data: []byte(value), Mode: 0444}
	}
	for key, value := range cm.BinaryData {
		files[configMapPath(root, key)] = &fstest.MapFile{Data: value, Mode: 0444}
	}

	return files, nil
}

// ParseConfigMapRef parses a ConfigMap reference
// Supports formats:
//   - name (uses defaultNamespace)
//   - namespace/name
func ParseConfigMapRef(ref, defaultNamespace string) (client.ObjectKey, error) {
	parts := strings.SplitN(ref, "/", 2)

	if len(parts) == 1 {
		if parts[0] == "" {
			return client.ObjectKey{}, fmt.Errorf("invalid ConfigMap reference %q", ref)
		}
		return client.ObjectKey{Namespace: defaultNamespace, Name: parts[0]}, nil
	}

	if parts[0] == "" || parts[1] == "" {
		return client.ObjectKey{}, fmt.Errorf("invalid ConfigMap reference %q", ref)
	}
	return client.ObjectKey{Namespace: parts[0], Name: parts[1]}, nil
}

func configMapPath(root, key string) string {
	return path.Join(root, strings.ReplaceAll(key, ConfigMapDirSeparator, "/"))
}
