package skills

import (
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// EnvSnapshot is a point-in-time capture of the process environment
// and binary lookups. Checks read the snapshot only, never the live
// environment, so one check is not racy against concurrent mutation.
type EnvSnapshot struct {
	Env  map[string]string
	Bins map[string]bool
}

// CaptureEnv snapshots the current environment plus PATH lookups for
// every binary any manifest in reg requires.
func CaptureEnv(reg *Registry) EnvSnapshot {
	snap := EnvSnapshot{
		Env:  make(map[string]string),
		Bins: make(map[string]bool),
	}
	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			snap.Env[kv[:idx]] = kv[idx+1:]
		}
	}
	if reg != nil {
		for _, info := range reg.ListAll() {
			for _, bin := range info.RequiresBins {
				if _, seen := snap.Bins[bin]; seen {
					continue
				}
				_, err := exec.LookPath(bin)
				snap.Bins[bin] = err == nil
			}
		}
	}
	return snap
}

// Availability is the result of a capability check for one skill.
type Availability struct {
	OK          bool
	MissingEnv  []string
	MissingBins []string
	CheckedAt   time.Time
}

// Reason summarizes what is missing, for operator display.
func (a Availability) Reason() string {
	if a.OK {
		return ""
	}
	var parts []string
	if len(a.MissingEnv) > 0 {
		parts = append(parts, "env: "+strings.Join(a.MissingEnv, ", "))
	}
	if len(a.MissingBins) > 0 {
		parts = append(parts, "bins: "+strings.Join(a.MissingBins, ", "))
	}
	return "missing " + strings.Join(parts, "; ")
}

// Check is a pure function of the manifest and snapshot: re-running it
// with an unchanged snapshot yields the same result. Always-on skills
// get no exemption; unavailability only removes routing eligibility.
func Check(info *SkillInfo, snap EnvSnapshot) Availability {
	avail := Availability{OK: true, CheckedAt: time.Now()}

	for _, name := range info.RequiresEnv {
		if strings.TrimSpace(snap.Env[name]) == "" {
			avail.MissingEnv = append(avail.MissingEnv, name)
		}
	}
	for _, bin := range info.RequiresBins {
		if !snap.Bins[bin] {
			avail.MissingBins = append(avail.MissingBins, bin)
		}
	}
	sort.Strings(avail.MissingEnv)
	sort.Strings(avail.MissingBins)
	avail.OK = len(avail.MissingEnv) == 0 && len(avail.MissingBins) == 0
	return avail
}

// AvailabilitySet maps skill name to its latest check result.
type AvailabilitySet map[string]Availability

// CheckAll evaluates every manifest in reg against one snapshot.
func CheckAll(reg *Registry, snap EnvSnapshot) AvailabilitySet {
	set := make(AvailabilitySet, reg.Len())
	for _, info := range reg.ListAll() {
		set[info.Name] = Check(info, snap)
	}
	return set
}

// Available reports whether name passed its most recent check.
// Unknown names are unavailable.
func (s AvailabilitySet) Available(name string) bool {
	avail, ok := s[name]
	return ok && avail.OK
}
