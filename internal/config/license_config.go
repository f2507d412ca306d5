package config

import "time"

type Licensing struct{}

var _ LicenseConfig = Licensing{}

func (Licensing) GetDefaultTrialDays() int {
	return 14
}

func (Licensing) GetDefaultGracePeriodDays() int {
	return 7
}

// GetLicenseSweepInterval is the cadence of the expiry sweep run by the server.
func (Licensing) GetLicenseSweepInterval() time.Duration {
	return GetEnvDuration(licenseSweepVar, time.Hour)
}
