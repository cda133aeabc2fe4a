package retrieval

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const manifestName = "corpus.yaml"

// Manifest is an optional per-corpus file listing the documents to index.
// When present, files not listed are skipped; when absent, every .md file
// in the corpus directory is indexed.
type Manifest struct {
	Sources []ManifestSource `yaml:"sources"`
}

// ManifestSource describes one corpus document.
type ManifestSource struct {
	File  string   `yaml:"file"`
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// loadManifest reads the manifest at path. A missing file is not an error;
// it returns (nil, nil) meaning "index everything".
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "retrieval: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "retrieval: parse manifest %s", path)
	}
	if len(m.Sources) == 0 {
		return nil, nil
	}
	return &m, nil
}

func (m *Manifest) includes(file string) bool {
	for _, s := range m.Sources {
		if s.File == file {
			return true
		}
	}
	return false
}
