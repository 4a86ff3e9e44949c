package nanodc

import "strings"

// Context constants for skiplist operations
const (
	CacheContext = "cache" // loaded from disk, not yet confirmed by the current refresh
	ScanContext  = "scan"  // confirmed or produced by the current refresh
	TreeContext  = "tree"  // directory and file ordering lists
)

// File constants
const (
	ConfigFile    = "config"
	HashCacheFile = "hashcache.txt"
	IgnoreFile    = "ignore"
)

// Hash cache format constants
const (
	HashCacheSignature      = "NDCHC"
	CurrentHashCacheVersion = 1
)

// Hash type constants
const (
	HashTypeTree    uint16 = 1 // blake3 Merkle tree over 64 KiB leaves
	HashTypeSampled uint16 = 2 // imohash sampled digest
)

// HashTypeName returns the human-readable name for a hash type
func HashTypeName(hashType uint16) string {
	switch hashType {
	case HashTypeTree:
		return "tree"
	case HashTypeSampled:
		return "sampled"
	default:
		return "unknown"
	}
}

// HashTypeFromName returns the hash type constant from a name (case-insensitive)
func HashTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "tree":
		return HashTypeTree, true
	case "sampled":
		return HashTypeSampled, true
	default:
		return 0, false
	}
}

// Tree defaults
const (
	DefaultMaxTreeDepth = 128
	TreeLeafSize        = 64 * 1024
	skiplistMaxLevels   = 16
)

// Bloom filter defaults
const (
	DefaultBloomNGram         = 5
	DefaultBloomFPRate        = 0.01
	DefaultBloomExpectedTerms = 1 << 16
)

// File list constants
const (
	FileListVersion   = "1"
	DefaultGenerator  = "nanodc 0.1"
	VirtualSeparator  = "/"
	DefaultCompressor = "zstd"
)
