package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactSink_SaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "screenshots")
	sink := NewArtifactSink(dir)

	assert.False(t, sink.Exists(ArtifactExample))
	path, err := sink.Save(ArtifactExample, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ArtifactExample), path)
	assert.True(t, sink.Exists(ArtifactExample))

	// 同名文件被覆盖
	_, err = sink.Save(ArtifactExample, []byte("second"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestArtifactSink_PathStaysInsideDir(t *testing.T) {
	sink := NewArtifactSink("/tmp/shots")
	assert.Equal(t, filepath.Join("/tmp/shots", "x.png"), sink.Path("../../x.png"))
	assert.Equal(t, "screenshots", NewArtifactSink("").Dir())
}

func TestEnhancedArtifact(t *testing.T) {
	assert.Equal(t, "enhanced_screenshot_0.png", EnhancedArtifact(0))
	assert.Equal(t, "enhanced_screenshot_3.png", EnhancedArtifact(3))
}
