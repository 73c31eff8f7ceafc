package conda

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRepoData = `{
  "info": {"subdir": "linux-64"},
  "packages": {
    "numpy-1.8.1-py27_0.tar.bz2": {
      "name": "NumPy",
      "version": "1.8.1",
      "build": "py27_0",
      "build_number": 0,
      "depends": ["python >=2.7,<2.8", "libblas"],
      "track_features": "mkl",
      "sha256": "aaaa",
      "timestamp": 1561104000000
    }
  },
  "packages.conda": {
    "python-2.7.15-h0371630_0.conda": {
      "name": "python",
      "version": "2.7.15",
      "build": "h0371630_0",
      "build_number": 0,
      "constrains": ["python_abi 2.7.* *_cp27mu"],
      "track_features": "feat1, feat2"
    }
  }
}`

func TestLoadRepoData(t *testing.T) {
	records, err := LoadRepoData(strings.NewReader(sampleRepoData), "defaults")
	require.NoError(t, err)
	require.Len(t, records, 2)

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	numpy := records[0]
	assert.Equal(t, "numpy", numpy.Name)
	assert.Equal(t, "1.8.1", numpy.Version.String())
	assert.Equal(t, "py27_0", numpy.Build)
	assert.Equal(t, []string{"python >=2.7,<2.8", "libblas"}, numpy.Depends)
	assert.Equal(t, []string{"mkl"}, numpy.TrackFeatures)
	assert.Equal(t, "defaults", numpy.Channel)
	assert.Equal(t, "linux-64", numpy.Subdir)
	assert.Equal(t, "aaaa", numpy.SHA256)
	assert.Equal(t, int64(1561104000000), numpy.Timestamp)

	python := records[1]
	assert.Equal(t, "python", python.Name)
	assert.Equal(t, []string{"python_abi 2.7.* *_cp27mu"}, python.Constrains)
	assert.Equal(t, []string{"feat1", "feat2"}, python.TrackFeatures)
	assert.Zero(t, python.Timestamp)
}

func TestLoadRepoDataErrors(t *testing.T) {
	_, err := LoadRepoData(strings.NewReader("{"), "defaults")
	assert.Error(t, err)

	corrupt := `{"packages": {"x-1-0.tar.bz2": {"name": "x", "version": "..", "build": "0"}}}`
	_, err = LoadRepoData(strings.NewReader(corrupt), "defaults")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x-1-0.tar.bz2")
}

func TestRecordIdentity(t *testing.T) {
	a := record("numpy", "1.8.1", "py27_0", "defaults")
	b := record("numpy", "1.8.1", "py27_0", "defaults")
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.SameContent(b))

	b.SHA256 = "bbbb"
	a.SHA256 = "aaaa"
	assert.False(t, a.SameContent(b))

	c := record("numpy", "1.8.1", "py27_0", "conda-forge")
	assert.NotEqual(t, a.Key(), c.Key())

	assert.Equal(t, "numpy=1.8.1=py27_0@defaults", a.ID())
	assert.Equal(t, "numpy-1.8.1-py27_0", a.String())
}

func TestDetectVirtualPackages(t *testing.T) {
	virtual := DetectVirtualPackages()
	require.NotEmpty(t, virtual)
	for _, r := range virtual {
		assert.True(t, r.IsVirtual())
		assert.True(t, strings.HasPrefix(r.Name, VirtualPrefix))
	}
}
