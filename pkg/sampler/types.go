package sampler

import "time"

type Memory struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usagePercent"`
}

type CPU struct {
	Count        int      `json:"count"`
	Model        string   `json:"model"`
	UsagePercent *float64 `json:"usagePercent"`
}

type System struct {
	Uptime   uint64 `json:"uptime"`
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// Reading is the result of one Sample call. Memory and System are nil and
// CPU.UsagePercent is nil when the value is unavailable.
type Reading struct {
	Timestamp time.Time
	CPU       CPU
	Memory    *Memory
	System    *System
}

// Available reports whether the host counters could be read at all.
func (r Reading) Available() bool {
	return r.Memory != nil && r.System != nil
}

func (r Reading) MemoryPercent() *float64 {
	if r.Memory == nil {
		return nil
	}
	v := r.Memory.UsagePercent
	return &v
}

// coreTicks is the per-core accounting kept between calls.
type coreTicks struct {
	total float64
	idle  float64
}
