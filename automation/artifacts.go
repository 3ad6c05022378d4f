package automation

import (
	"fmt"
	"os"
	"path/filepath"
)

// 截图文件名
const (
	ArtifactExample       = "example.png"
	ArtifactFoundry       = "foundry_page.png"
	ArtifactOpenAIPricing = "openai_pricing.png"
	ArtifactFallback      = "fallback_screenshot.png"
)

// EnhancedArtifact names the i-th image returned by the enhanced backend.
func EnhancedArtifact(i int) string {
	return fmt.Sprintf("enhanced_screenshot_%d.png", i)
}

// ArtifactSink 把截图写入固定目录，目录在首次写入前创建
type ArtifactSink struct {
	dir string
}

// DefaultArtifactDir is used when no directory is configured.
const DefaultArtifactDir = "screenshots"

// NewArtifactSink returns a sink rooted at dir. An empty dir means
// DefaultArtifactDir relative to the working directory.
func NewArtifactSink(dir string) *ArtifactSink {
	if dir == "" {
		dir = DefaultArtifactDir
	}
	return &ArtifactSink{dir: dir}
}

// Dir returns the artifact directory.
func (s *ArtifactSink) Dir() string { return s.dir }

// Ensure creates the directory if needed.
func (s *ArtifactSink) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", s.dir, err)
	}
	return nil
}

// Path returns where name is (or would be) stored.
func (s *ArtifactSink) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save writes data under name, replacing any earlier file, and returns its path.
func (s *ArtifactSink) Save(name string, data []byte) (string, error) {
	if err := s.Ensure(); err != nil {
		return "", err
	}
	path := s.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Exists reports whether name has been written.
func (s *ArtifactSink) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}
