package cmd

import (
	"fmt"
	"sort"

	"github.com/pkg/profile"
)

type Stopper interface {
	Stop()
}

var profileModes = map[string]func(*profile.Profile){
	"cpu": profile.CPUProfile,
	"memHeap": func(p *profile.Profile) {
		profile.MemProfileRate(1)(p)
		profile.MemProfileHeap(p)
	},
	"memAllocs": func(p *profile.Profile) {
		profile.MemProfileRate(1)(p)
		profile.MemProfileAllocs(p)
	},
	"goroutines":     profile.GoroutineProfile,
	"mutex":          profile.MutexProfile,
	"block":          profile.BlockProfile,
	"threadCreation": profile.ThreadcreationProfile,
	"trace":          profile.TraceProfile,
	"clock":          profile.ClockProfile,
}

// ProfileModes lists the modes accepted by ProfileStart
func ProfileModes() []string {
	modes := make([]string, 0, len(profileModes))
	for mode := range profileModes {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// ProfileStart starts profiling in the given mode, writing the profile under
// dir. Signal handling is left to the caller, so a profiled server still shuts
// down through its own handler and stops the profile cleanly
func ProfileStart(mode string, dir string) (Stopper, error) {
	option, ok := profileModes[mode]
	if !ok {
		return nil, fmt.Errorf("unknown profile mode %q, expected one of %v", mode, ProfileModes())
	}
	if dir == "" {
		dir = "."
	}
	return profile.Start(option, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet), nil
}
