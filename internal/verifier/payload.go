package verifier

import (
	"regexp"

	"github.com/mitchellh/mapstructure"
)

// resultPayload is the typed view of a task's result map. Tools follow a
// loose key contract; missing keys degrade heuristics but never crash.
type resultPayload struct {
	PathAbs string `mapstructure:"path_abs"`
	PathRel string `mapstructure:"path_rel"`
	DirPath string `mapstructure:"dir_path"`

	RC      *int   `mapstructure:"rc"`
	Stdout  string `mapstructure:"stdout"`
	Stderr  string `mapstructure:"stderr"`
	Blocked bool   `mapstructure:"blocked"`
	Timeout bool   `mapstructure:"timeout"`
	Command string `mapstructure:"command"`

	Replaced     *int   `mapstructure:"replaced"`
	AppliedHunks *int   `mapstructure:"applied_hunks"`
	ClassesSplit *int   `mapstructure:"classes_split"`
	PackageDir   string `mapstructure:"package_dir"`
	PackageInit  string `mapstructure:"package_init"`
	Matches      *int   `mapstructure:"matches"`

	Skipped    bool   `mapstructure:"skipped"`
	SourceNote string `mapstructure:"source_note"`
}

// decodePayload converts a result map into the typed payload. Numeric values
// survive JSON roundtrips as float64; weak decoding absorbs that.
func decodePayload(result map[string]any) *resultPayload {
	payload := &resultPayload{}
	if len(result) == 0 {
		return payload
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           payload,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return payload
	}
	// Best effort: a partially decoded payload is still useful.
	_ = decoder.Decode(result)
	return payload
}

var pathTokenRe = regexp.MustCompile(`[\w./\-]+\.[\w]{1,6}|[\w\-]+(?:/[\w.\-]+)+`)

func pathTokens(description string) []string {
	return pathTokenRe.FindAllString(description, -1)
}
