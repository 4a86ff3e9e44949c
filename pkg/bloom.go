package nanodc

import (
	"math"
	"strings"

	"github.com/twmb/murmur3"
)

// BloomFilter answers "might this substring occur in some shared name?". It
// indexes every n-gram of the lower-cased names it is given. A term shorter
// than n cannot be checked and is always reported as possibly present.
type BloomFilter struct {
	bits  []uint64
	m     uint64
	k     int
	ngram int
}

// NewBloomFilter sizes a filter for expectedTerms n-grams at the given false
// positive rate.
func NewBloomFilter(expectedTerms int, fpRate float64, ngram int) *BloomFilter {
	if expectedTerms < 1 {
		expectedTerms = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultBloomFPRate
	}
	if ngram < 1 {
		ngram = DefaultBloomNGram
	}

	n := float64(expectedTerms)
	m := uint64(math.Ceil(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	m = (m + 63) &^ 63

	k := int(math.Round(float64(m) / n * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &BloomFilter{
		bits:  make([]uint64, m/64),
		m:     m,
		k:     k,
		ngram: ngram,
	}
}

// Bits returns the filter width in bits.
func (bf *BloomFilter) Bits() uint64 { return bf.m }

// HashCount returns the number of hash functions.
func (bf *BloomFilter) HashCount() int { return bf.k }

// NGram returns the indexed substring length.
func (bf *BloomFilter) NGram() int { return bf.ngram }

// Build clears the filter and adds every term.
func (bf *BloomFilter) Build(terms []string) {
	for i := range bf.bits {
		bf.bits[i] = 0
	}
	for _, term := range terms {
		bf.Add(term)
	}
}

// Add indexes every n-gram of name.
func (bf *BloomFilter) Add(name string) {
	lower := strings.ToLower(name)
	for i := 0; i+bf.ngram <= len(lower); i++ {
		bf.addGram(lower[i : i+bf.ngram])
	}
}

// MightContain reports false only when term occurs in no added name.
func (bf *BloomFilter) MightContain(term string) bool {
	lower := strings.ToLower(term)
	if len(lower) < bf.ngram {
		return true
	}
	for i := 0; i+bf.ngram <= len(lower); i++ {
		if !bf.testGram(lower[i : i+bf.ngram]) {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) addGram(gram string) {
	h1, h2 := murmur3.StringSum128(gram)
	for i := 0; i < bf.k; i++ {
		bit := (h1 + uint64(i)*h2) % bf.m
		bf.bits[bit/64] |= 1 << (bit % 64)
	}
}

func (bf *BloomFilter) testGram(gram string) bool {
	h1, h2 := murmur3.StringSum128(gram)
	for i := 0; i < bf.k; i++ {
		bit := (h1 + uint64(i)*h2) % bf.m
		if bf.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// countNGrams returns how many n-grams name contributes; used for sizing.
func countNGrams(name string, ngram int) int {
	if n := len(name) - ngram + 1; n > 0 {
		return n
	}
	return 0
}
