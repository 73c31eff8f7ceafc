package version

import "fmt"

// MarmotVersion indicates what version of marmot the binary belongs to
var MarmotVersion string

// GitCommit indicates which git commit the binary was built from
var GitCommit string

// String returns a pretty string concatenation of MarmotVersion and GitCommit
func String() string {
	return fmt.Sprintf("Marmot Version: %s\nGit commit: %s\n", MarmotVersion, GitCommit)
}
