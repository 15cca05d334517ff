// Package seed loads a YAML catalog of plans, network records, vouchers and
// a super admin into the database. Every entry is matched by name or
// username first, so re-running a catalog only adds what is missing.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zmooth/zmooth/internal/platform/money"
)

// Catalog is the seed file layout.
type Catalog struct {
	Admin    *CatalogAdmin   `yaml:"admin"`
	Plans    []CatalogPlan   `yaml:"plans"`
	Network  []CatalogRecord `yaml:"network"`
	Vouchers []CatalogBatch  `yaml:"vouchers"`
}

// CatalogAdmin is the bootstrap super admin.
type CatalogAdmin struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// CatalogPlan is one plan, keyed by name.
type CatalogPlan struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Service       string `yaml:"service"`
	Type          string `yaml:"type"`
	Price         string `yaml:"price"`
	Currency      string `yaml:"currency"`
	DataLimitMB   int64  `yaml:"data_limit_mb"`
	ValidityDays  int    `yaml:"validity_days"`
	ValidityHours int    `yaml:"validity_hours"`
	DownloadKbps  int    `yaml:"download_kbps"`
	UploadKbps    int    `yaml:"upload_kbps"`
	Devices       int    `yaml:"devices"`
	BillingCycle  string `yaml:"billing_cycle"`
	Featured      bool   `yaml:"featured"`
	SortOrder     int    `yaml:"sort_order"`
}

// CatalogRecord is one network record, keyed by kind and name. Spec holds
// the kind's fields.
type CatalogRecord struct {
	Kind string         `yaml:"kind"`
	Name string         `yaml:"name"`
	Spec map[string]any `yaml:"spec"`
}

// CatalogBatch is one voucher batch, keyed by label.
type CatalogBatch struct {
	Plan     string `yaml:"plan"`
	Label    string `yaml:"label"`
	Count    int    `yaml:"count"`
	Validity string `yaml:"validity"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Catalog{}, errors.New("catalog path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes YAML, rejecting unknown fields.
func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// Validate checks cross references that the services cannot see.
func (c Catalog) Validate() error {
	plans := make(map[string]struct{}, len(c.Plans))
	for i, plan := range c.Plans {
		name := strings.TrimSpace(plan.Name)
		if name == "" {
			return fmt.Errorf("plans[%d]: name is required", i)
		}
		if _, ok := plans[name]; ok {
			return fmt.Errorf("plans[%d]: duplicate plan %q", i, name)
		}
		if _, err := money.Parse(plan.Price); err != nil {
			return fmt.Errorf("plans[%d] %s: price: %w", i, name, err)
		}
		plans[name] = struct{}{}
	}
	for i, record := range c.Network {
		if strings.TrimSpace(record.Kind) == "" || strings.TrimSpace(record.Name) == "" {
			return fmt.Errorf("network[%d]: kind and name are required", i)
		}
	}
	labels := make(map[string]struct{}, len(c.Vouchers))
	for i, batch := range c.Vouchers {
		label := strings.TrimSpace(batch.Label)
		if label == "" {
			return fmt.Errorf("vouchers[%d]: label is required", i)
		}
		if _, ok := labels[label]; ok {
			return fmt.Errorf("vouchers[%d]: duplicate label %q", i, label)
		}
		labels[label] = struct{}{}
	}
	return nil
}
