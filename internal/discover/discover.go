// Package discover locates per-node statistics files for a job on the
// shared filesystem and extracts per-node core counts from them.
package discover

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedStats marks a statistics file whose data line does not carry
// the expected leading metadata columns. This is fatal for the whole run.
var ErrMalformedStats = errors.New("discover: malformed statistics file")

// metadataColumns is the fixed count of leading columns in a statistics
// file data line: LOCALTIME TIME GB_LIMIT GB_USED GB_SWAP_USED. Everything
// after them is one column per core.
const metadataColumns = 5

// Config selects where statistics files live
type Config struct {
	// Root is the per-node directory root; files live at
	// <Root>/<cluster>/<Kind>/<node>/<jobid>.
	Root string

	// Kind is the statistics directory name under the cluster directory
	Kind string

	// HardPrefix, when set, switches to node-independent addressing:
	// the single candidate file is <HardPrefix>/<jobid>.
	HardPrefix string
}

// File associates a node with its discovered statistics file. Node is empty
// in hard-prefix mode, where the file is not tied to any one node.
type File struct {
	Node string
	Path string
}

// NodePath returns the per-node statistics file path for a job
func (c Config) NodePath(cluster, node, jobid string) string {
	return filepath.Join(c.Root, cluster, c.Kind, node, jobid)
}

// Find probes for statistics files belonging to a job and returns the
// qualifying files plus the node list, reordered so that nodes with a file
// come first (discovery order), followed by nodes without one (original
// order). A file qualifies only if it exists and is non-empty.
//
// In hard-prefix mode the single candidate path is probed, no node carries
// the file, and the node list is returned unchanged.
func (c Config) Find(cluster, jobid string, nodes []string) ([]File, []string, error) {
	if c.HardPrefix != "" {
		path := filepath.Join(c.HardPrefix, jobid)
		if usable(path) {
			return []File{{Path: path}}, nodes, nil
		}
		return nil, nodes, nil
	}

	var files []File
	var withFile, withoutFile []string

	for _, node := range nodes {
		path := c.NodePath(cluster, node, jobid)
		if usable(path) {
			files = append(files, File{Node: node, Path: path})
			withFile = append(withFile, node)
		} else {
			withoutFile = append(withoutFile, node)
		}
	}

	ordered := make([]string, 0, len(nodes))
	ordered = append(ordered, withFile...)
	ordered = append(ordered, withoutFile...)

	return files, ordered, nil
}

// usable reports whether a statistics file exists and is non-empty
func usable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// CoreCount reads a statistics file and returns the number of core columns
// on its first data line: total columns minus the fixed metadata columns.
// The header line is skipped unconditionally.
func CoreCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open statistics file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	// Header line, discarded
	if !scanner.Scan() {
		return 0, fmt.Errorf("%w: %s has no header line", ErrMalformedStats, path)
	}

	// First data line
	if !scanner.Scan() {
		return 0, fmt.Errorf("%w: %s has no data line", ErrMalformedStats, path)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read statistics file %s: %w", path, err)
	}

	cols := strings.Fields(scanner.Text())
	if len(cols) < metadataColumns {
		return 0, fmt.Errorf("%w: %s data line has %d columns, expected at least %d",
			ErrMalformedStats, path, len(cols), metadataColumns)
	}

	return len(cols) - metadataColumns, nil
}
