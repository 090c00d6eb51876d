package audit

import "lumen/internal/domain"

// ThrottlingProfile carries the network and CPU degradation parameters
// applied during an audit. ThroughputKbps is the legacy aggregate field
// some engine versions still read alongside the split down/up values.
type ThrottlingProfile struct {
	RTTMs                  float64 `json:"rttMs"`
	ThroughputKbps         float64 `json:"throughputKbps"`
	RequestLatencyMs       float64 `json:"requestLatencyMs"`
	DownloadThroughputKbps float64 `json:"downloadThroughputKbps"`
	UploadThroughputKbps   float64 `json:"uploadThroughputKbps"`
	CPUSlowdownMultiplier  float64 `json:"cpuSlowdownMultiplier"`
}

var throttlingProfiles = map[string]ThrottlingProfile{
	"none": {
		RTTMs:                  0,
		ThroughputKbps:         0,
		RequestLatencyMs:       0,
		DownloadThroughputKbps: 0,
		UploadThroughputKbps:   0,
		CPUSlowdownMultiplier:  1,
	},
	"4g": {
		RTTMs:                  40,
		ThroughputKbps:         10240,
		RequestLatencyMs:       0,
		DownloadThroughputKbps: 9216,
		UploadThroughputKbps:   2304,
		CPUSlowdownMultiplier:  4,
	},
	"3g": {
		RTTMs:                  150,
		ThroughputKbps:         1638,
		RequestLatencyMs:       562.5,
		DownloadThroughputKbps: 1474.5,
		UploadThroughputKbps:   614.4,
		CPUSlowdownMultiplier:  4,
	},
	"slow-3g": {
		RTTMs:                  400,
		ThroughputKbps:         400,
		RequestLatencyMs:       2000,
		DownloadThroughputKbps: 400,
		UploadThroughputKbps:   400,
		CPUSlowdownMultiplier:  4,
	},
}

// Profile returns the throttling parameters for a named network condition.
// Unknown names fail fast with a ConfigError; a silent default would mask a
// client mistake.
func Profile(name string) (ThrottlingProfile, error) {
	p, ok := throttlingProfiles[name]
	if !ok {
		return ThrottlingProfile{}, &domain.ConfigError{Msg: "unknown throttling profile: " + name}
	}
	return p, nil
}

// KnownProfile reports whether name maps to a throttling profile.
func KnownProfile(name string) bool {
	_, ok := throttlingProfiles[name]
	return ok
}
