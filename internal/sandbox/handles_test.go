package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
)

func TestHandleStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore(dir)

	require.NoError(t, store.Save(Handles{Sandbox: "agent", Engine: engine.TypeDocker, Main: "c1", Browser: "c2", PID: 42}))
	assert.FileExists(t, filepath.Join(dir, "sandboxes", "agent.handles.json"))

	h, err := store.Load("agent")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "c1", h.Main)
	assert.Equal(t, engine.TypeDocker, h.Engine)
	assert.Equal(t, 42, h.PID)
	assert.False(t, h.UpdatedAt.IsZero())
	assert.Equal(t, []string{"c1", "c2"}, h.IDs())

	require.NoError(t, store.Remove("agent"))
	h, err = store.Load("agent")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestHandleStore_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore(dir)

	h, err := store.Load("none")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.NoError(t, store.Remove("none"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sandboxes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandboxes", "bad.handles.json"), []byte("{"), 0644))
	_, err = store.Load("bad")
	assert.Error(t, err)
}

func TestHandles_IDs(t *testing.T) {
	assert.Empty(t, (&Handles{}).IDs())
	assert.Equal(t, []string{"b"}, (&Handles{Browser: "b"}).IDs())
}
