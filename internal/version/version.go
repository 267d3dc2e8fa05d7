// Package version compares the scheduler binary's version against the
// version recorded in the database.
package version

import (
	"fmt"
	"strings"
)

// DevVersion is the version carried by local builds; it is compatible with
// everything.
const DevVersion = "dev"

// CheckCompatibility returns an error when the two versions cannot run
// against the same database. Versions are compatible when their major.minor
// prefixes match; patch releases never change the schema.
func CheckCompatibility(appVersion, dbVersion string) error {
	if appVersion == DevVersion || dbVersion == DevVersion {
		return nil
	}
	if majorMinor(appVersion) == majorMinor(dbVersion) {
		return nil
	}
	return fmt.Errorf(
		"version mismatch between application (%s) and database (%s): upgrade or downgrade to a compatible version",
		appVersion, dbVersion,
	)
}

func majorMinor(v string) string {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	if len(parts) < 2 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
