package conda

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// repoData mirrors the repodata.json document served by a channel
// subdirectory. Only the fields the resolver reads are decoded.
type repoData struct {
	Info struct {
		Subdir string `json:"subdir"`
	} `json:"info"`
	Packages      map[string]rawRecord `json:"packages"`
	PackagesConda map[string]rawRecord `json:"packages.conda"`
}

type rawRecord struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Build         string   `json:"build"`
	BuildNumber   int      `json:"build_number"`
	Depends       []string `json:"depends"`
	Constrains    []string `json:"constrains"`
	TrackFeatures string   `json:"track_features"`
	SHA256        string   `json:"sha256"`
	MD5           string   `json:"md5"`
	Timestamp     int64    `json:"timestamp"`
}

// LoadRepoData decodes one channel subdirectory's repodata.json into
// package records attributed to the given channel. The result is the
// inbound candidate-pool format expected by the resolver; it is not
// deduplicated here.
func LoadRepoData(r io.Reader, channel string) ([]*PackageRecord, error) {
	var doc repoData
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding repodata")
	}

	records := make([]*PackageRecord, 0, len(doc.Packages)+len(doc.PackagesConda))
	for _, group := range []map[string]rawRecord{doc.Packages, doc.PackagesConda} {
		for filename, raw := range group {
			record, err := raw.toRecord(channel, doc.Info.Subdir)
			if err != nil {
				return nil, errors.Wrapf(err, "record %q", filename)
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func (raw rawRecord) toRecord(channel, subdir string) (*PackageRecord, error) {
	version, err := ParseVersion(raw.Version)
	if err != nil {
		return nil, err
	}
	return &PackageRecord{
		Name:          NormalizeName(raw.Name),
		Version:       version,
		Build:         raw.Build,
		BuildNumber:   raw.BuildNumber,
		Depends:       raw.Depends,
		Constrains:    raw.Constrains,
		TrackFeatures: splitFeatures(raw.TrackFeatures),
		Channel:       channel,
		Subdir:        subdir,
		SHA256:        raw.SHA256,
		MD5:           raw.MD5,
		Timestamp:     raw.Timestamp,
	}, nil
}

func splitFeatures(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
