package monitor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/flexcoop/archivist/internal/config"
)

// FlexMountChecker probes a city's flex-server mount for readability and,
// in "as-user" mode, a best-effort write-probe via a throwaway temp file
// (spec.md §4.12: "flex mounts readable+writable (optional test-file probe
// gated by an 'as-user' mode)").
type FlexMountChecker struct {
	City      config.FlexServer
	AsUser    bool
}

func (c FlexMountChecker) Name() string   { return "flex_mount:" + c.City.CityID }
func (c FlexMountChecker) Required() bool { return false }

func (c FlexMountChecker) Check(ctx context.Context) CheckResult {
	info, err := os.Stat(c.City.MountPath)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "mount not reachable"}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusDegraded, Message: "mount path is not a directory"}
	}

	if !c.AsUser {
		return CheckResult{Status: StatusHealthy, Message: "mount readable"}
	}

	probe := filepath.Join(c.City.MountPath, ".archivist_health_probe")
	f, err := os.Create(probe)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "mount not writable"}
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: "mount readable and writable"}
}

// QueueDepths is the subset of jobqueue.Queue.Stats the monitor surface
// needs, kept as a plain function to avoid an import cycle with jobqueue.
type QueueDepths func() map[string]int

// QueueDepthChecker reports per-state queue depth. It is always healthy:
// depth itself is informational (spec.md §4.12 "queue depth by state"),
// not a failure signal.
type QueueDepthChecker struct {
	depths QueueDepths
}

// NewQueueDepthChecker builds a Checker that surfaces queue depth by state.
func NewQueueDepthChecker(depths QueueDepths) QueueDepthChecker {
	return QueueDepthChecker{depths: depths}
}

func (q QueueDepthChecker) Name() string   { return "queue_depth" }
func (q QueueDepthChecker) Required() bool { return false }

func (q QueueDepthChecker) Check(ctx context.Context) CheckResult {
	depths := q.depths()
	total := 0
	for _, n := range depths {
		total += n
	}
	if total == 0 {
		return CheckResult{Status: StatusHealthy, Message: "queue empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "jobs in flight"}
}
