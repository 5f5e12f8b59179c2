// Package seed loads the starter AI tool catalog from YAML.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

//go:embed catalog.yml
var defaultCatalog []byte

type File struct {
	Tools []Entry `yaml:"tools"`
}

type Entry struct {
	Name        string   `yaml:"name"`
	Slug        string   `yaml:"slug"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Logo        string   `yaml:"logo"`
	Website     string   `yaml:"website"`
	Pricing     string   `yaml:"pricing"`
	Tags        []string `yaml:"tags"`
	Featured    bool     `yaml:"featured"`
	Views       int64    `yaml:"views"`
	// Pending entries are inserted unapproved.
	Pending     bool     `yaml:"pending"`
}

// Parse decodes a catalog document. Entries without a name or category are
// rejected so a typo never produces a blank listing.
func Parse(data []byte) ([]*catalogdomain.Tool, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	tools := make([]*catalogdomain.Tool, 0, len(file.Tools))
	for i, e := range file.Tools {
		name := strings.TrimSpace(e.Name)
		category := strings.TrimSpace(e.Category)
		if name == "" || category == "" {
			return nil, fmt.Errorf("catalog entry %d: name and category are required", i)
		}
		tools = append(tools, &catalogdomain.Tool{
			Name:        name,
			Slug:        strings.ToLower(strings.TrimSpace(e.Slug)),
			Description: strings.TrimSpace(e.Description),
			Category:    category,
			LogoURL:     strings.TrimSpace(e.Logo),
			WebsiteURL:  strings.TrimSpace(e.Website),
			Pricing:     strings.TrimSpace(e.Pricing),
			Tags:        datatypes.NewJSONSlice(e.Tags),
			IsApproved:  !e.Pending,
			IsFeatured:  e.Featured,
			Views:       e.Views,
		})
	}
	return tools, nil
}

// Load reads path, or the embedded starter catalog when path is empty.
func Load(path string) ([]*catalogdomain.Tool, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

type Seeder interface {
	Seed(ctx context.Context, tools []*catalogdomain.Tool) (int, error)
}

func Run(ctx context.Context, svc Seeder, path string, log *zap.Logger) error {
	if svc == nil {
		return errors.New("seed catalog service is required")
	}
	tools, err := Load(path)
	if err != nil {
		return err
	}
	inserted, err := svc.Seed(ctx, tools)
	if err != nil {
		return err
	}
	log.Info("catalog seeded", zap.Int("inserted", inserted), zap.Int("total", len(tools)))
	return nil
}
