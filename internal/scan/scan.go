// Package scan discovers legacy archives under the source root.
//
// The orchestrator never walks directories itself; this package turns the
// configured class mappings into a deterministic, validated entity list.
// Discovery is read-only: suspicious names, retired files and entities
// missing from a roster are skipped with a log line, never touched.
package scan

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/logging"
	"github.com/perfhist/rrdmig/internal/migrate"
)

var log = logging.Component("scan")

// Mapping describes one class of archives: the subdirectory its files live
// in under the source root, the id prefix they get under the target root,
// and how deep the files sit.
type Mapping struct {
	// Source is the class directory name under the source root.
	Source string

	// Target is the id prefix for entities of this class. Entity ids
	// always use forward slashes.
	Target string

	// Depth is 1 when archives sit directly inside the class directory,
	// 2 when one directory level (the owning node) sits between.
	Depth int

	// Roster is an optional resource-list file. When set, archives whose
	// name is not listed belong to entities the cluster no longer tracks
	// and are skipped.
	Roster string
}

// DefaultMappings mirrors the legacy producer's tree: guests and nodes
// directly under their class directory, storages nested per node.
func DefaultMappings() []Mapping {
	return []Mapping{
		{Source: "vm", Target: "vm", Depth: 1},
		{Source: "node", Target: "node", Depth: 1},
		{Source: "storage", Target: "storage", Depth: 2},
	}
}

// Validate checks a single mapping.
func (m Mapping) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("source is empty")
	}
	if strings.ContainsAny(m.Source, `/\`) {
		return fmt.Errorf("source %q must be a single directory name", m.Source)
	}
	if m.Target == "" {
		return fmt.Errorf("target is empty")
	}
	if strings.HasPrefix(m.Target, "/") || strings.HasSuffix(m.Target, "/") {
		return fmt.Errorf("target %q must be a relative prefix", m.Target)
	}
	if m.Depth != 1 && m.Depth != 2 {
		return fmt.Errorf("depth %d not supported (want 1 or 2)", m.Depth)
	}
	return nil
}

// CheckRoot verifies the source root exists and is a directory. Called
// before a run so a mistyped -source fails with one clear error instead of
// an empty scan.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Tagf(errors.ErrReadFailed, err, "source root %s", root)
	}
	if !info.IsDir() {
		return fmt.Errorf("source root %s is not a directory: %w", root, errors.ErrReadFailed)
	}
	return nil
}

// Scan walks every mapping under root and returns the discovered entities
// sorted by id, so runs are deterministic and reports comparable.
func Scan(root string, mappings []Mapping) ([]migrate.Entity, error) {
	var entities []migrate.Entity
	for _, m := range mappings {
		found, err := m.scan(root)
		if err != nil {
			return nil, fmt.Errorf("mapping %s: %w", m.Source, err)
		}
		entities = append(entities, found...)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities, nil
}

func (m Mapping) scan(root string) ([]migrate.Entity, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var roster *Roster
	if m.Roster != "" {
		r, err := LoadRoster(m.Roster)
		if err != nil {
			return nil, err
		}
		roster = r
	}

	dir := filepath.Join(root, m.Source)
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Not every deployment has every class; a missing directory is
		// an empty class, not a failure.
		if os.IsNotExist(err) {
			log.Debug("class directory missing", "mapping", m.Source, "dir", dir)
			return nil, nil
		}
		return nil, errors.Tagf(errors.ErrReadFailed, err, "list %s", dir)
	}

	var out []migrate.Entity
	for _, e := range entries {
		if m.Depth == 1 {
			if ent, ok := m.entity(dir, "", e, roster); ok {
				out = append(out, ent)
			}
			continue
		}

		if !e.IsDir() {
			log.Debug("skipping stray file", "mapping", m.Source, "name", e.Name())
			continue
		}
		node := e.Name()
		if err := checkComponent(node); err != nil {
			log.Warn("skipping directory", "mapping", m.Source, "name", node, "error", err)
			continue
		}
		subdir := filepath.Join(dir, node)
		subEntries, err := os.ReadDir(subdir)
		if err != nil {
			return nil, errors.Tagf(errors.ErrReadFailed, err, "list %s", subdir)
		}
		for _, se := range subEntries {
			if se.IsDir() {
				log.Debug("skipping nested directory", "mapping", m.Source, "name", path.Join(node, se.Name()))
				continue
			}
			if ent, ok := m.entity(subdir, node, se, roster); ok {
				out = append(out, ent)
			}
		}
	}
	return out, nil
}

// entity validates one directory entry and builds its migrate.Entity. The
// second return is false when the entry is not an archive to convert.
func (m Mapping) entity(dir, sub string, e os.DirEntry, roster *Roster) (migrate.Entity, bool) {
	name := e.Name()
	if e.IsDir() {
		log.Debug("skipping directory where archive expected", "mapping", m.Source, "name", name)
		return migrate.Entity{}, false
	}
	if strings.HasPrefix(name, ".") {
		return migrate.Entity{}, false
	}
	if strings.HasSuffix(name, config.RetiredSuffix) {
		log.Debug("skipping retired archive", "mapping", m.Source, "name", name)
		return migrate.Entity{}, false
	}
	if err := checkComponent(name); err != nil {
		log.Warn("skipping archive", "mapping", m.Source, "name", name, "error", err)
		return migrate.Entity{}, false
	}
	if roster != nil && !roster.Contains(name) {
		log.Info("entity not in roster, skipping", "mapping", m.Source, "entity", name)
		return migrate.Entity{}, false
	}

	return migrate.Entity{
		ID:         path.Join(m.Target, sub, name),
		SourcePath: filepath.Join(dir, name),
	}, true
}

// checkComponent rejects names that cannot safely become part of an entity
// id or a target path.
func checkComponent(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("reserved name %q", name)
	}
	if len(name) > 255 {
		return fmt.Errorf("name exceeds 255 bytes")
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("control character in name")
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("path separator in name")
		}
	}
	return nil
}
