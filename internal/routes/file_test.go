package routes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules_MissingGroupsKeepDefaults(t *testing.T) {
	rules, err := ParseRules([]byte("protected:\n  - /learn/**\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/learn/**"}, rules.Protected)
	assert.Equal(t, DefaultRules().AdminOnly, rules.AdminOnly)
}

func TestParseRules_Empty(t *testing.T) {
	rules, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestParseRules_UnknownKey(t *testing.T) {
	_, err := ParseRules([]byte("protectd:\n  - /x\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("creator_only:\n  - /studio/**\n"), 0o600))
	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, CreatorOnly, c.Classify("/studio/new"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsAndKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protected:\n  - /a/**\n"), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	reloaded := make(chan error, 4)
	w.onReload = func(err error) { reloaded <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	// Let the watcher register before writing.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, Protected, w.Current().Classify("/a/1"))

	require.NoError(t, os.WriteFile(path, []byte("protected:\n  - /b/**\n"), 0o600))
	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after valid write")
	}
	assert.Equal(t, Protected, w.Current().Classify("/b/1"))
	assert.Equal(t, Public, w.Current().Classify("/a/1"))

	require.NoError(t, os.WriteFile(path, []byte("protected: [\"re:(\"]\n"), 0o600))
	select {
	case err := <-reloaded:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after invalid write")
	}
	assert.Equal(t, Protected, w.Current().Classify("/b/1"))

	cancel()
	<-done
}
