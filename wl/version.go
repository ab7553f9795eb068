package wl

import "fmt"

// ExpectedVersion is the concurrency token supplied with an append. A
// non-negative value asserts the stream's current highest sequence number;
// AnyVersion skips the check entirely.
type ExpectedVersion int64

const (
	// AnyVersion appends without a version check.
	AnyVersion ExpectedVersion = -1

	// NoStream asserts the stream does not exist yet.
	NoStream ExpectedVersion = 0
)

func Exactly(version uint64) ExpectedVersion {
	return ExpectedVersion(version)
}

// Checked reports whether the version comparison is requested.
func (v ExpectedVersion) Checked() bool {
	return v >= 0
}

func (v ExpectedVersion) String() string {
	if !v.Checked() {
		return "any"
	}
	return fmt.Sprintf("%d", int64(v))
}
