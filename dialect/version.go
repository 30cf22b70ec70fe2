// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/go-version"
)

var versionRx = regexp.MustCompile(`\d+(\.\d+)*`)

// ParseVersion extracts the first dotted version number found in a server
// version string, such as "PostgreSQL 15.2 on x86_64" or
// "10.11.2-MariaDB-1:10.11.2".
func ParseVersion(s string) (*version.Version, error) {
	m := versionRx.FindString(s)
	if m == "" {
		return nil, fmt.Errorf("no version number in %q", s)
	}
	return version.NewVersion(m)
}

// ServerVersion runs query, which must return the server version string, and
// parses its result.
func ServerVersion(ctx context.Context, q Querier, query string) (string, *version.Version, error) {
	s, err := QueryString(ctx, q, query)
	if err != nil {
		return "", nil, fmt.Errorf("cannot read server version: %w", err)
	}
	v, err := ParseVersion(s)
	if err != nil {
		return s, nil, fmt.Errorf("cannot read server version: %w", err)
	}
	return s, v, nil
}

// AtLeast reports whether v is at least the version min, given as a
// constant string.
func AtLeast(v *version.Version, min string) bool {
	if v == nil {
		return false
	}
	return v.GreaterThanOrEqual(version.Must(version.NewVersion(min)))
}
