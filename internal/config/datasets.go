package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownDataset is returned when a dataset name is neither a registered
// alias nor a raw HDA identifier.
var ErrUnknownDataset = errors.New("unknown dataset")

// DatasetConfig maps a short alias to an HDA dataset identifier and the
// product types it publishes. Additional entries are loaded from JSON files
// in the datasets directory.
type DatasetConfig struct {
	Alias       string   `json:"alias"`
	ID          string   `json:"dataset_id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Products    []string `json:"products,omitempty"`
}

// DefaultDatasets are the HR-VPP and Sentinel-3 datasets known out of the box.
var DefaultDatasets = []DatasetConfig{
	{
		Alias:    "VPP_Index",
		ID:       "EO:EEA:DAT:CLMS_HRVPP_VI",
		Title:    "HR-VPP Vegetation Indices",
		Products: []string{"PPI", "NDVI", "LAI", "FAPAR", "FCOVER"},
	},
	{
		Alias:    "VPP_ST",
		ID:       "EO:EEA:DAT:CLMS_HRVPP_ST",
		Title:    "HR-VPP Seasonal Trajectories",
		Products: []string{"PPI", "QFLAG"},
	},
	{
		Alias: "VPP_Pheno",
		ID:    "EO:EEA:DAT:CLMS_HRVPP_VPP",
		Title: "HR-VPP Vegetation Phenology and Productivity Parameters",
		Products: []string{
			"SOSD", "SOSV", "MAXD", "MAXV", "EOSD", "EOSV",
			"LENGTH", "AMPL", "LSLOPE", "RSLOPE", "SPROD", "TPROD",
		},
	},
	{
		Alias: "SLSTR",
		ID:    "EO:ESA:DAT:SENTINEL-3:SL_2_LST___",
		Title: "Sentinel-3 SLSTR Land Surface Temperature",
	},
}

// DatasetRegistry holds dataset aliases indexed by alias.
type DatasetRegistry struct {
	datasets map[string]*DatasetConfig
}

// NewDatasetRegistry creates a registry seeded with DefaultDatasets.
func NewDatasetRegistry() *DatasetRegistry {
	r := &DatasetRegistry{
		datasets: make(map[string]*DatasetConfig, len(DefaultDatasets)),
	}
	for i := range DefaultDatasets {
		d := DefaultDatasets[i]
		r.datasets[d.Alias] = &d
	}
	return r
}

// LoadDatasets returns the default registry extended with the JSON files in
// datasetsDir. An empty datasetsDir yields the defaults only.
// Only files with a .json extension are processed.
func LoadDatasets(datasetsDir string) (*DatasetRegistry, error) {
	registry := NewDatasetRegistry()
	if datasetsDir == "" {
		return registry, nil
	}

	info, err := os.Stat(datasetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access datasets directory %q: %w", datasetsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("datasets path %q is not a directory", datasetsDir)
	}

	entries, err := os.ReadDir(datasetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasets directory %q: %w", datasetsDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}

		filePath := filepath.Join(datasetsDir, entry.Name())
		dataset, err := loadDatasetFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset from %q: %w", filePath, err)
		}

		if err := registry.Add(dataset); err != nil {
			return nil, fmt.Errorf("failed to add dataset from %q: %w", filePath, err)
		}
	}

	return registry, nil
}

func loadDatasetFile(filePath string) (*DatasetConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var dataset DatasetConfig
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := validateDataset(&dataset); err != nil {
		return nil, fmt.Errorf("invalid dataset configuration: %w", err)
	}

	return &dataset, nil
}

func validateDataset(d *DatasetConfig) error {
	if d.Alias == "" {
		return fmt.Errorf("dataset alias is required")
	}

	if strings.Contains(d.Alias, ":") {
		return fmt.Errorf("dataset alias %q must not contain ':'", d.Alias)
	}

	if d.ID == "" {
		return fmt.Errorf("dataset_id is required")
	}

	for i, p := range d.Products {
		if strings.TrimSpace(p) == "" || strings.Contains(p, "_") {
			return fmt.Errorf("products[%d] %q is not a valid product token", i, p)
		}
	}

	return nil
}

// Add registers a dataset in the registry.
// Returns an error if a dataset with the same alias already exists.
func (r *DatasetRegistry) Add(dataset *DatasetConfig) error {
	if dataset == nil {
		return fmt.Errorf("cannot add nil dataset")
	}

	if _, exists := r.datasets[dataset.Alias]; exists {
		return fmt.Errorf("dataset with alias %q already exists", dataset.Alias)
	}

	r.datasets[dataset.Alias] = dataset
	return nil
}

// Get retrieves a dataset by alias.
// Returns nil if the alias is not registered.
func (r *DatasetRegistry) Get(alias string) *DatasetConfig {
	return r.datasets[alias]
}

// Has checks if an alias is registered.
func (r *DatasetRegistry) Has(alias string) bool {
	_, exists := r.datasets[alias]
	return exists
}

// All returns all datasets sorted by alias.
func (r *DatasetRegistry) All() []*DatasetConfig {
	out := make([]*DatasetConfig, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Count returns the number of registered datasets.
func (r *DatasetRegistry) Count() int {
	return len(r.datasets)
}

// Resolve turns a dataset name into an HDA dataset identifier.
// Registered aliases map to their identifier; names containing ':' are
// taken as raw identifiers.
func (r *DatasetRegistry) Resolve(name string) (string, error) {
	if d := r.Get(name); d != nil {
		return d.ID, nil
	}
	if strings.Contains(name, ":") {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownDataset, name, strings.Join(r.aliases(), ", "))
}

// UnknownProducts returns the products not published by the named dataset.
// Raw identifiers and datasets without a product list accept anything.
func (r *DatasetRegistry) UnknownProducts(name string, products []string) []string {
	d := r.Get(name)
	if d == nil || len(d.Products) == 0 {
		return nil
	}

	known := make(map[string]bool, len(d.Products))
	for _, p := range d.Products {
		known[p] = true
	}

	var unknown []string
	for _, p := range products {
		if !known[p] {
			unknown = append(unknown, p)
		}
	}
	return unknown
}

func (r *DatasetRegistry) aliases() []string {
	out := make([]string, 0, len(r.datasets))
	for alias := range r.datasets {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
