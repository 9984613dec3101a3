package schemafile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoschema/internal/schema"
)

// Property: schema files always land directly in the store directory and
// are named after the config's group and stem.
func TestStore_Path_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	store := NewStore("/repo/.schemas")
	properties.Property("path is <dir>/<group>_<stem>_schema.json", prop.ForAll(
		func(group, stem string, yml bool) bool {
			ext := ".yaml"
			if yml {
				ext = ".yml"
			}
			path := store.Path(filepath.Join("/repo/conf", group, stem+ext))
			return filepath.Dir(path) == store.Dir &&
				filepath.Base(path) == group+"_"+stem+"_schema.json"
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestStore_WriteLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, ".schemas"))
	config := filepath.Join(dir, "conf", "model", "resnet.yaml")

	_, err := store.Load(config)
	assert.ErrorIs(t, err, ErrSchemaNotFound)
	assert.NoFileExists(t, store.Path(config))

	sc := schema.Schema{"title": "a <b> & c", "type": "object"}
	path, err := store.Write(config, sc, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".schemas", "model_resnet_schema.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n\n"))
	assert.Contains(t, string(data), "a <b> & c")
	assert.Contains(t, string(data), "\n  \"title\"")

	loaded, err := store.Load(config)
	require.NoError(t, err)
	assert.Equal(t, sc, loaded)
	assert.False(t, store.IsIncomplete(config))
}

func TestStore_IncompleteMarker(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	config := filepath.Join(dir, "conf", "bad.yaml")

	_, err := store.Write(config, schema.Schema{}, true)
	require.NoError(t, err)
	assert.True(t, store.IsIncomplete(config))

	_, err = store.Write(config, schema.Schema{}, false)
	require.NoError(t, err)
	assert.False(t, store.IsIncomplete(config))
	_, err = os.Stat(sidecarPath(store.Path(config)))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_NeedsRegen(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, ".schemas"))
	config := filepath.Join(dir, "conf", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(config), 0o755))
	require.NoError(t, os.WriteFile(config, []byte("a: 1\n"), 0o644))

	regen, reason := store.NeedsRegen(config, 10*time.Second, false)
	assert.True(t, regen)
	assert.Equal(t, ReasonMissing, reason)

	path, err := store.Write(config, schema.Schema{}, false)
	require.NoError(t, err)

	regen, reason = store.NeedsRegen(config, 10*time.Second, false)
	assert.False(t, regen)
	assert.Equal(t, ReasonFresh, reason)

	regen, reason = store.NeedsRegen(config, 10*time.Second, true)
	assert.True(t, regen)
	assert.Equal(t, ReasonForced, reason)

	// Modified inside the grace window: still fresh.
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))
	require.NoError(t, os.Chtimes(config, now.Add(5*time.Second), now.Add(5*time.Second)))
	regen, _ = store.NeedsRegen(config, 10*time.Second, false)
	assert.False(t, regen)

	require.NoError(t, os.Chtimes(config, now.Add(time.Minute), now.Add(time.Minute)))
	regen, reason = store.NeedsRegen(config, 10*time.Second, false)
	assert.True(t, regen)
	assert.Equal(t, ReasonModified, reason)

	require.NoError(t, os.Chtimes(config, now, now))
	_, err = store.Write(config, schema.Schema{}, true)
	require.NoError(t, err)
	regen, reason = store.NeedsRegen(config, 10*time.Second, false)
	assert.True(t, regen)
	assert.Equal(t, ReasonIncomplete, reason)
}

func TestStore_EnsureIgnored(t *testing.T) {
	repo := t.TempDir()
	store := NewStore(filepath.Join(repo, ".schemas"))

	require.NoError(t, store.EnsureIgnored(repo))
	data, err := os.ReadFile(filepath.Join(repo, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".schemas\n", string(data))

	require.NoError(t, store.EnsureIgnored(repo))
	data, err = os.ReadFile(filepath.Join(repo, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".schemas\n", string(data))

	require.NoError(t, os.WriteFile(filepath.Join(repo, ".gitignore"), []byte("*.pyc"), 0o644))
	require.NoError(t, store.EnsureIgnored(repo))
	data, err = os.ReadFile(filepath.Join(repo, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*.pyc\n.schemas\n", string(data))
}
