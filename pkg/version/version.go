package version

import "fmt"

// Overridden at build time via -ldflags.
var (
	Version = "v0.0.0-dev"
	Commit  = "HEAD"
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func Get() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
}
