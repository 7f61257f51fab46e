// Package nodeset expands compact Slurm-style node range expressions
// into explicit node name lists.
package nodeset

import (
	"fmt"
	"strconv"
	"strings"
)

// Expand parses a node specification and returns the explicit list of node
// names, in declared order. Three forms are accepted:
//
//	m80                  single bare name
//	m2,m3,m4             comma-separated full names
//	m[26,74-75,77-78]    compact form: prefix plus integer terms/ranges
//
// Mixing full names with the compact form is not supported.
func Expand(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty node specification")
	}

	// Compact form: prefix[terms]
	if open := strings.Index(spec, "["); open >= 0 {
		if !strings.HasSuffix(spec, "]") {
			return nil, fmt.Errorf("unterminated node range: %q", spec)
		}
		prefix := spec[:open]
		if prefix == "" {
			return nil, fmt.Errorf("node range missing prefix: %q", spec)
		}
		terms := spec[open+1 : len(spec)-1]
		return expandCompact(prefix, terms)
	}

	// Literal comma-separated list
	if strings.Contains(spec, ",") {
		return parseLiteralList(spec)
	}

	// Single bare name
	return []string{spec}, nil
}

// expandCompact expands terms inside prefix[...]. Each term is either a
// single integer suffix or an inclusive lo-hi range. Integers are not
// zero-padded on expansion.
func expandCompact(prefix, terms string) ([]string, error) {
	if terms == "" {
		return nil, fmt.Errorf("empty node range for prefix %q", prefix)
	}

	result := []string{}
	for _, term := range strings.Split(terms, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			return nil, fmt.Errorf("empty term in node range for prefix %q", prefix)
		}

		if strings.Contains(term, "-") {
			vals, err := expandRange(term)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				result = append(result, prefix+strconv.Itoa(v))
			}
			continue
		}

		n, err := strconv.Atoi(term)
		if err != nil {
			return nil, fmt.Errorf("invalid node suffix %q: %w", term, err)
		}
		result = append(result, prefix+strconv.Itoa(n))
	}

	return result, nil
}

// expandRange expands an inclusive lo-hi integer range
func expandRange(term string) ([]int, error) {
	parts := strings.Split(term, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range syntax: %q", term)
	}

	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", parts[0], err)
	}

	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", parts[1], err)
	}

	if lo > hi {
		return nil, fmt.Errorf("invalid range: start %d > end %d", lo, hi)
	}

	vals := make([]int, hi-lo+1)
	for i := range vals {
		vals[i] = lo + i
	}
	return vals, nil
}

// parseLiteralList splits a comma-separated list of full node names
func parseLiteralList(spec string) ([]string, error) {
	parts := strings.Split(spec, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty name in node list %q", spec)
		}
		result = append(result, part)
	}

	return result, nil
}
