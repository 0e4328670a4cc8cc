package localization

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/linguist/data"
)

const catalogFile = localesDir + "/languages.yaml"

type catalogEntry struct {
	Code    string `yaml:"code"`
	Native  string `yaml:"native"`
	English string `yaml:"english"`
}

type catalogDocument struct {
	Languages []catalogEntry `yaml:"languages"`
}

// Catalog returns the built in language catalog used to seed storage.
func Catalog() ([]data.Language, error) {
	raw, err := embedded.ReadFile(catalogFile)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a languages document. Codes are normalised and
// duplicates dropped, keeping the first.
func ParseCatalog(raw []byte) ([]data.Language, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse language catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Languages))
	languages := make([]data.Language, 0, len(doc.Languages))
	for _, entry := range doc.Languages {
		code := data.NormalizeLanguage(entry.Code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		languages = append(languages, data.Language{
			Code:        code,
			NativeName:  entry.Native,
			EnglishName: entry.English,
		})
	}
	return languages, nil
}
