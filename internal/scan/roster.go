package scan

import (
	"os"
	"strings"

	"github.com/perfhist/rrdmig/internal/errors"
)

// Roster is the set of entity names the cluster still tracks, loaded from a
// resource-list file. Archives for entities outside the roster belong to
// guests or nodes that were removed and keep their legacy files untouched.
type Roster struct {
	path string
	data string
}

// LoadRoster reads a resource-list file. A configured roster that cannot be
// read is an error: falling back to "migrate everything" would silently
// resurrect stale entities.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Tagf(errors.ErrReadFailed, err, "roster %s", path)
	}
	return &Roster{path: path, data: string(data)}, nil
}

// Contains reports whether name is listed. Resource lists quote every
// entity name, so membership is a quoted-substring check; this matches the
// cluster's own lookup and needs no knowledge of the list format.
func (r *Roster) Contains(name string) bool {
	return strings.Contains(r.data, `"`+name+`"`)
}

// Path returns the file the roster was loaded from.
func (r *Roster) Path() string {
	return r.path
}
