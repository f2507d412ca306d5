package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanEntry is one plan in the YAML plan catalog.
type PlanEntry struct {
	Name                  string  `yaml:"name"`
	MaxConcurrentSessions int64   `yaml:"maxConcurrentSessions"`
	MaxSessionsPerUser    int64   `yaml:"maxSessionsPerUser"`
	MaxDataMB             int64   `yaml:"maxDataMB"`
	MaxVoters             int64   `yaml:"maxVoters"`
	MaxUsers              int64   `yaml:"maxUsers"`
	MaxElections          int64   `yaml:"maxElections"`
	MaxAPIRequestsPerDay  int64   `yaml:"maxApiRequestsPerDay"`
	MaxAPIRequestsPerHour int64   `yaml:"maxApiRequestsPerHour"`
	TrialDays             int     `yaml:"trialDays"`
	GracePeriodDays       int     `yaml:"gracePeriodDays"`
	BillingPeriodDays     int     `yaml:"billingPeriodDays"`
	MonthlyPrice          float64 `yaml:"monthlyPrice"`
	OveragePricePerVoter  float64 `yaml:"overagePricePerVoter"`
	OveragePricePerGB     float64 `yaml:"overagePricePerGB"`
}

type PlanCatalog struct {
	Plans []PlanEntry `yaml:"plans"`
}

// LoadPlanCatalog reads the plan catalog. A missing file yields an empty catalog.
func LoadPlanCatalog(path string) (*PlanCatalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &PlanCatalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", path, err)
	}
	return ParsePlanCatalog(data)
}

func ParsePlanCatalog(data []byte) (*PlanCatalog, error) {
	var catalog PlanCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unmarshal plan catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	for i, p := range catalog.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("plan %q declared twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return &catalog, nil
}
