// Package validation provides the pure input checks shared by the configuration
// document, the endpoint client and the interactive prompts.
//
// Every function here is total: nothing returns an error or panics, callers
// decide whether a false result aborts the command.
package validation

import (
	"strconv"
	"strings"
)

// EfusesLengths are the accepted decoded sizes, in bytes, of the e-fuses
// public value and mask.
var EfusesLengths = []int{256, 1024}

// DeviceUIDLength is the decoded size, in bytes, of a device UID.
const DeviceUIDLength = 8

// IsHex reports whether s is a non-empty, even-length string of hex digits,
// i.e. something hex.DecodeString accepts without error.
func IsHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// HexByteLength returns the number of bytes s decodes to.
func HexByteLength(s string) int {
	return len(s) / 2
}

// HasHexByteLength reports whether s is hex and decodes to one of lengths.
func HasHexByteLength(s string, lengths ...int) bool {
	if !IsHex(s) {
		return false
	}
	n := HexByteLength(s)
	for _, l := range lengths {
		if n == l {
			return true
		}
	}
	return false
}

// IsHexOfByteLength reports whether s is hex and decodes to exactly n bytes.
func IsHexOfByteLength(s string, n int) bool {
	return HasHexByteLength(s, n)
}

// IsInteger reports whether s parses as a base-10 integer. Surrounding
// whitespace is ignored.
func IsInteger(s string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil
}

// IsNonNegativeInteger reports whether s parses as a base-10 integer >= 0.
func IsNonNegativeInteger(s string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && n >= 0
}

// SplitList splits a comma separated list. An empty string yields the
// single-element sentinel [""], meaning "empty list provided".
func SplitList(s string) []string {
	return strings.Split(s, ",")
}

// CheckNonNegativeIntegerList reports whether every item is a non-negative
// base-10 integer. The sentinel [""] is accepted as an empty list.
func CheckNonNegativeIntegerList(items []string) bool {
	if len(items) == 1 && items[0] == "" {
		return true
	}
	for _, item := range items {
		if !IsNonNegativeInteger(item) {
			return false
		}
	}
	return true
}

// ParseIntegerList converts items to integers on a best-effort basis.
// Entries that do not parse are dropped silently, so ["1", "x", "3"] yields
// [1, 3]. The result is never nil.
func ParseIntegerList(items []string) []int {
	parsed := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			continue
		}
		parsed = append(parsed, n)
	}
	return parsed
}

// ParseStringList turns a comma separated list into its entries. An empty
// string yields an empty, non-nil list.
func ParseStringList(s string) []string {
	if s == "" {
		return []string{}
	}
	return SplitList(s)
}

// ParseYesNo accepts Y/N answers, case-insensitive.
func ParseYesNo(s string) (value bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y":
		return true, true
	case "N":
		return false, true
	default:
		return false, false
	}
}
