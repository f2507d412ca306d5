package config

type QuotaConfig interface {
	GetNearLimitRatio() float64
}

type Quota struct{}

var _ QuotaConfig = Quota{}

// GetNearLimitRatio is the usage fraction at which a tenant counts as near its limit.
func (Quota) GetNearLimitRatio() float64 {
	return 0.8
}
