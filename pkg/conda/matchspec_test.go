package conda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(name, version, build, channel string) *PackageRecord {
	return &PackageRecord{
		Name:    name,
		Version: mustParse(version),
		Build:   build,
		Channel: channel,
	}
}

func mustParse(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestParseMatchSpec(t *testing.T) {
	type tc struct {
		Name    string
		Spec    string
		Want    MatchSpec
		WantErr bool
	}

	for _, tt := range []tc{
		{
			Name: "bare name",
			Spec: "numpy",
			Want: MatchSpec{Name: "numpy"},
		},
		{
			Name: "name is case normalized",
			Spec: "NumPy",
			Want: MatchSpec{Name: "numpy"},
		},
		{
			Name: "name with channel",
			Spec: "numpy::conda-forge",
			Want: MatchSpec{Name: "numpy", Channel: "conda-forge"},
		},
		{
			Name: "version and build",
			Spec: "numpy 1.8.1=py27_0",
			Want: MatchSpec{Name: "numpy", Build: "py27_0"},
		},
		{
			Name: "build glob",
			Spec: "numpy >=1.8=py27*",
			Want: MatchSpec{Name: "numpy", Build: "py27*"},
		},
		{
			Name:    "empty",
			Spec:    "   ",
			WantErr: true,
		},
		{
			Name:    "empty channel",
			Spec:    "numpy::",
			WantErr: true,
		},
		{
			Name:    "missing name",
			Spec:    ">=1.0",
			WantErr: true,
		},
		{
			Name:    "operator without operand",
			Spec:    "numpy >=",
			WantErr: true,
		},
		{
			Name:    "wildcard with relational operator",
			Spec:    "numpy >=1.8.*",
			WantErr: true,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			spec, err := ParseMatchSpec(tt.Spec)
			if tt.WantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.Want.Name, spec.Name)
			assert.Equal(t, tt.Want.Build, spec.Build)
			assert.Equal(t, tt.Want.Channel, spec.Channel)
		})
	}
}

func TestMatchSpecMatches(t *testing.T) {
	type tc struct {
		Name     string
		Spec     string
		Record   *PackageRecord
		Expected bool
	}

	for _, tt := range []tc{
		{
			Name:     "bare name matches any version",
			Spec:     "numpy",
			Record:   record("numpy", "1.8.1", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "different name",
			Spec:     "numpy",
			Record:   record("scipy", "1.8.1", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "exact version",
			Spec:     "numpy ==1.8.1",
			Record:   record("numpy", "1.8.1", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "exact version with equivalent spelling",
			Spec:     "numpy ==1.8.1",
			Record:   record("numpy", "1.8.1.0", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "prefix form matches point release",
			Spec:     "numpy =1.8",
			Record:   record("numpy", "1.8.2", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "prefix form is component-wise",
			Spec:     "numpy =1.8",
			Record:   record("numpy", "1.80", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "star suffix prefix form",
			Spec:     "numpy 1.8.*",
			Record:   record("numpy", "1.8.post1", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "negated prefix",
			Spec:     "numpy !=1.8.*",
			Record:   record("numpy", "1.8.2", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "negated prefix allows others",
			Spec:     "numpy !=1.8.*",
			Record:   record("numpy", "1.9", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "range conjunction inside",
			Spec:     "numpy >=1.8,<2",
			Record:   record("numpy", "1.9", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "range conjunction outside",
			Spec:     "numpy >=1.8,<2",
			Record:   record("numpy", "2.0", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "disjunction picks either branch",
			Spec:     "numpy 1.8|1.9",
			Record:   record("numpy", "1.9", "py27_0", "defaults"),
			Expected: true,
		},
		{
			Name:     "disjunction rejects outside both branches",
			Spec:     "numpy 1.8|1.9",
			Record:   record("numpy", "2.0", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "build string must match",
			Spec:     "numpy 1.8.1=py27_0",
			Record:   record("numpy", "1.8.1", "py36_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "build glob matches",
			Spec:     "numpy >=1.8=py27*",
			Record:   record("numpy", "1.8.1", "py27_3", "defaults"),
			Expected: true,
		},
		{
			Name:     "channel restriction matches",
			Spec:     "numpy::conda-forge",
			Record:   record("numpy", "1.8.1", "py27_0", "conda-forge"),
			Expected: true,
		},
		{
			Name:     "channel restriction rejects",
			Spec:     "numpy::conda-forge",
			Record:   record("numpy", "1.8.1", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "pre-release below lower bound",
			Spec:     "numpy >=1.8",
			Record:   record("numpy", "1.8a1", "py27_0", "defaults"),
			Expected: false,
		},
		{
			Name:     "post release above lower bound",
			Spec:     "numpy >=1.8",
			Record:   record("numpy", "1.8.post1", "py27_0", "defaults"),
			Expected: true,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			spec, err := ParseMatchSpec(tt.Spec)
			require.NoError(t, err)
			assert.Equal(t, tt.Expected, spec.Matches(tt.Record))
		})
	}
}

func TestMatchSpecFeatures(t *testing.T) {
	r := record("numpy", "1.8.1", "py27_0", "defaults")
	r.TrackFeatures = []string{"mkl"}

	withFeature := &MatchSpec{Name: "numpy", RequiredFeatures: []string{"mkl"}}
	assert.True(t, withFeature.Matches(r))

	withoutFeature := &MatchSpec{Name: "numpy", ForbiddenFeatures: []string{"mkl"}}
	assert.False(t, withoutFeature.Matches(r))

	missingFeature := &MatchSpec{Name: "numpy", RequiredFeatures: []string{"nomkl"}}
	assert.False(t, missingFeature.Matches(r))
}

func TestMatchSpecBuildNumber(t *testing.T) {
	r := record("numpy", "1.8.1", "py27_2", "defaults")
	r.BuildNumber = 2

	for _, tt := range []struct {
		Op       string
		Value    int
		Expected bool
	}{
		{Op: "==", Value: 2, Expected: true},
		{Op: "==", Value: 1, Expected: false},
		{Op: ">=", Value: 2, Expected: true},
		{Op: ">", Value: 2, Expected: false},
		{Op: "!=", Value: 3, Expected: true},
		{Op: "<", Value: 3, Expected: true},
	} {
		spec := &MatchSpec{Name: "numpy", BuildNumber: &BuildNumberMatch{Op: tt.Op, Value: tt.Value}}
		assert.Equalf(t, tt.Expected, spec.Matches(r), "build number %s %d", tt.Op, tt.Value)
	}
}

func TestMatchSpecString(t *testing.T) {
	spec, err := ParseMatchSpec("numpy >=1.8,<2::conda-forge")
	require.NoError(t, err)
	assert.Equal(t, "numpy >=1.8,<2::conda-forge", spec.String())
}
