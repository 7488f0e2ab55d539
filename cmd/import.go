package main

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/quality"
	"github.com/sells-group/company-intel/internal/search"
	"github.com/sells-group/company-intel/internal/store"
)

var importPath string

// importFile is the YAML layout read by the import command.
type importFile struct {
	Companies []importCompany `yaml:"companies"`
}

type importCompany struct {
	ID          string `yaml:"id"`
	AccountID   string `yaml:"account_id"`
	Name        string `yaml:"name"`
	Domain      string `yaml:"domain"`
	Industry    string `yaml:"industry"`
	Location    string `yaml:"location"`
	Website     string `yaml:"website"`
	Description string `yaml:"description"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import companies from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companies, err := readImportFile(importPath)
		if err != nil {
			return err
		}
		scorer, err := quality.NewScorer(cfg.Quality.Weights)
		if err != nil {
			return err
		}

		st, idx, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		if idx != nil {
			defer idx.Close() //nolint:errcheck
		}
		defer st.Close() //nolint:errcheck

		created, skipped, err := importCompanies(ctx, st, idx, scorer, companies)
		if err != nil {
			return err
		}
		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
			zap.String("file", importPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to companies YAML file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

// readImportFile parses a companies YAML file. Entries without a name are
// rejected.
func readImportFile(path string) ([]model.Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: read %s", path)
	}
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "import: parse %s", path)
	}

	out := make([]model.Company, 0, len(f.Companies))
	for i, ic := range f.Companies {
		if strings.TrimSpace(ic.Name) == "" {
			return nil, fault.Validationf("import: parse", "company #%d has no name", i+1)
		}
		out = append(out, model.Company{
			ID:          ic.ID,
			AccountID:   ic.AccountID,
			Name:        strings.TrimSpace(ic.Name),
			Domain:      strings.TrimSpace(ic.Domain),
			Industry:    strings.TrimSpace(ic.Industry),
			Location:    strings.TrimSpace(ic.Location),
			Website:     strings.TrimSpace(ic.Website),
			Description: strings.TrimSpace(ic.Description),
		})
	}
	return out, nil
}

// importCompanies scores and creates each company, skipping ids that
// already exist. idx may be nil.
func importCompanies(ctx context.Context, st store.CompanyRepository, idx *search.Index, scorer *quality.Scorer, companies []model.Company) (created, skipped int, err error) {
	for _, c := range companies {
		if c.ID == "" {
			c.ID = uuid.New().String()
		} else if _, err := st.GetCompany(ctx, c.ID); err == nil {
			skipped++
			continue
		} else if !fault.Is(err, fault.KindNotFound) {
			return created, skipped, eris.Wrapf(err, "import: check %s", c.ID)
		}

		c.Verified = false
		c.DataQualityScore = scorer.ScoreCompany(c, nil)
		if err := st.CreateCompany(ctx, &c); err != nil {
			return created, skipped, eris.Wrapf(err, "import: create %s", c.Name)
		}
		if idx != nil {
			if err := idx.IndexCompany(c); err != nil {
				zap.L().Warn("import: index company failed", zap.String("company_id", c.ID), zap.Error(err))
			}
		}
		created++
	}
	return created, skipped, nil
}
