package resolver

import (
	"strings"

	"github.com/marmotpm/marmot/pkg/conda"
)

// PreferenceRule is one step of the tie-break policy applied when
// several candidates (or whole solutions) are equally valid.
type PreferenceRule int

const (
	// PreferInstalled keeps an already-installed record over an
	// equal alternative.
	PreferInstalled PreferenceRule = iota
	// PreferHigherChannelPriority picks the candidate from the
	// highest-priority channel.
	PreferHigherChannelPriority
	// PreferHigherVersion picks the greater version.
	PreferHigherVersion
	// PreferHigherBuildNumber picks the greater build number.
	PreferHigherBuildNumber
	// PreferFewerTrackFeatures picks the candidate carrying fewer
	// track-feature tags.
	PreferFewerTrackFeatures
)

// PreferenceOrder is an ordered list of tie-break rules. Earlier rules
// dominate later ones. The default order follows the engine contract;
// it is configurable rather than hard-coded because the relative rank
// of "prefer installed" and channel priority is policy, not fact.
type PreferenceOrder []PreferenceRule

// DefaultPreferenceOrder returns the standard tie-break policy:
// installed first, then channel priority, version, build number, and
// track-feature count. Locked and pinned records are enforced as hard
// constraints before any of these rules apply.
func DefaultPreferenceOrder() PreferenceOrder {
	return PreferenceOrder{
		PreferInstalled,
		PreferHigherChannelPriority,
		PreferHigherVersion,
		PreferHigherBuildNumber,
		PreferFewerTrackFeatures,
	}
}

// comparator returns a candidate ordering function for the task: it
// reports a negative value when a is preferred over b. Ties after all
// rules are broken by channel rank, then build string, for
// reproducibility.
func (t *Task) comparator(order PreferenceOrder) func(a, b *conda.PackageRecord) int {
	installed := make(map[conda.RecordKey]bool, len(t.Installed))
	for _, r := range t.Installed {
		installed[r.Key()] = true
	}

	return func(a, b *conda.PackageRecord) int {
		for _, rule := range order {
			switch rule {
			case PreferInstalled:
				ai, bi := installed[a.Key()], installed[b.Key()]
				if ai != bi {
					if ai {
						return -1
					}
					return 1
				}
			case PreferHigherChannelPriority:
				if ar, br := t.rankOf(a.Channel), t.rankOf(b.Channel); ar != br {
					return ar - br
				}
			case PreferHigherVersion:
				if c := a.Version.Compare(b.Version); c != 0 {
					return -c
				}
			case PreferHigherBuildNumber:
				if a.BuildNumber != b.BuildNumber {
					return b.BuildNumber - a.BuildNumber
				}
			case PreferFewerTrackFeatures:
				if la, lb := len(a.TrackFeatures), len(b.TrackFeatures); la != lb {
					return la - lb
				}
			}
		}
		if c := strings.Compare(a.Channel, b.Channel); c != 0 {
			return c
		}
		return strings.Compare(a.Build, b.Build)
	}
}
