package nanodc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalafut/imohash"
	"github.com/zeebo/blake3"
)

// Hasher computes the content hash of a file. Implementations may block for
// as long as reading the file takes; they should give up when ctx is done.
type Hasher interface {
	HashFile(ctx context.Context, realPath string) (HashRef, error)
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(ctx context.Context, realPath string) (HashRef, error)

func (f HasherFunc) HashFile(ctx context.Context, realPath string) (HashRef, error) {
	return f(ctx, realPath)
}

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name   string
	TypeID uint16
	// New returns a Hasher reading files through a buffer of bufferSize bytes.
	New func(bufferSize int) Hasher
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "tree":
		return &HashAlgorithm{
			Name:   "tree",
			TypeID: HashTypeTree,
			New:    func(bufferSize int) Hasher { return &TreeHasher{BufferSize: bufferSize} },
		}, nil
	case "sampled":
		return &HashAlgorithm{
			Name:   "sampled",
			TypeID: HashTypeSampled,
			New:    func(int) Hasher { return SampledHasher{} },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// Domain separation keys for the tree hash, derived once.
var (
	treeLeafKey [32]byte
	treeNodeKey [32]byte

	// emptyTreeHash is the tree hash of zero bytes.
	emptyTreeHash HashRef
)

func init() {
	blake3.DeriveKey("nanodc 2024 tree leaf", nil, treeLeafKey[:])
	blake3.DeriveKey("nanodc 2024 tree node", nil, treeNodeKey[:])
	emptyTreeHash = (&TreeHasher{}).HashBytes(nil)
}

// TreeHasher hashes files as a binary Merkle tree of blake3 keyed hashes over
// TreeLeafSize leaves, truncated to HashRefSize. The root of a one-leaf file
// is the leaf hash; an odd node at any level is promoted unchanged.
type TreeHasher struct {
	BufferSize int
}

// HashFile hashes a file on disk. ctx is checked between buffer reads.
func (th *TreeHasher) HashFile(ctx context.Context, realPath string) (HashRef, error) {
	file, err := os.Open(realPath)
	if err != nil {
		return HashRef{}, fmt.Errorf("failed to open file %s: %w", realPath, err)
	}
	defer file.Close()

	bufferSize := th.BufferSize
	if bufferSize < TreeLeafSize {
		bufferSize = TreeLeafSize
	}

	root, err := treeHashReader(ctx, bufio.NewReaderSize(file, bufferSize))
	if err != nil {
		return HashRef{}, fmt.Errorf("failed to hash file %s: %w", realPath, err)
	}
	return root, nil
}

// HashBytes hashes an in-memory buffer the same way HashFile hashes a file.
func (th *TreeHasher) HashBytes(data []byte) HashRef {
	root, _ := treeHashReader(context.Background(), bytes.NewReader(data))
	return root
}

func treeHashReader(ctx context.Context, r io.Reader) (HashRef, error) {
	leafHasher, err := blake3.NewKeyed(treeLeafKey[:])
	if err != nil {
		return HashRef{}, err
	}

	leaf := make([]byte, TreeLeafSize)
	var leaves []HashRef
	for {
		select {
		case <-ctx.Done():
			return HashRef{}, fmt.Errorf("hash operation interrupted: %w", ctx.Err())
		default:
		}

		n, readErr := io.ReadFull(r, leaf)
		if n > 0 || len(leaves) == 0 {
			leafHasher.Reset()
			leafHasher.Write(leaf[:n])
			leaves = append(leaves, HashRefFromBytes(leafHasher.Sum(nil)))
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return HashRef{}, readErr
		}
	}

	return merkleRoot(leaves)
}

func merkleRoot(level []HashRef) (HashRef, error) {
	nodeHasher, err := blake3.NewKeyed(treeNodeKey[:])
	if err != nil {
		return HashRef{}, err
	}

	var combined [2 * HashRefSize]byte
	for len(level) > 1 {
		next := make([]HashRef, (len(level)+1)/2)
		for i := 0; i < len(level)-1; i += 2 {
			copy(combined[:HashRefSize], level[i][:])
			copy(combined[HashRefSize:], level[i+1][:])
			nodeHasher.Reset()
			nodeHasher.Write(combined[:])
			next[i/2] = HashRefFromBytes(nodeHasher.Sum(nil))
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		level = next
	}
	return level[0], nil
}

// SampledHasher uses imohash: constant time per file regardless of size, at
// the cost of only sampling large files. Suited to huge, rarely changing shares.
type SampledHasher struct{}

func (SampledHasher) HashFile(ctx context.Context, realPath string) (HashRef, error) {
	if err := ctx.Err(); err != nil {
		return HashRef{}, fmt.Errorf("hash operation interrupted: %w", err)
	}

	file, err := os.Open(realPath)
	if err != nil {
		return HashRef{}, fmt.Errorf("failed to open file %s: %w", realPath, err)
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return HashRef{}, fmt.Errorf("failed to get file size: %w", err)
	}

	hasher := imohash.New()
	sum, err := hasher.SumSectionReader(io.NewSectionReader(file, 0, fi.Size()))
	if err != nil {
		return HashRef{}, fmt.Errorf("failed to hash file %s: %w", realPath, err)
	}
	h := HashRefFromBytes(sum[:])
	if h.IsZero() {
		// imohash of an empty file is all zeros, which reads as unhashed
		return emptyTreeHash, nil
	}
	return h, nil
}


// newConfiguredHasher builds the Hasher named by the hash config.
func newConfiguredHasher(hc *HashConfig) (Hasher, error) {
	algorithm, err := GetHashAlgorithm(hc.Algorithm)
	if err != nil {
		return nil, err
	}
	bufferSize, err := ParseHumanSize(hc.Buffer)
	if err != nil {
		return nil, fmt.Errorf("invalid hash buffer size %q: %w", hc.Buffer, err)
	}
	return algorithm.New(bufferSize), nil
}
