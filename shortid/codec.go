package shortid

import (
	"fmt"

	"github.com/arloliu/shardcoord/types"
)

const (
	// RangeSize is the number of local slots per shard.
	RangeSize int64 = 10_000_000

	// StarterRange is the offset added before encoding.
	StarterRange int64 = 100_000_000_000

	// Width is the fixed length of an encoded short identifier.
	Width = 7

	// Alphabet lists the base-62 digits in digit-value order.
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	base     = int64(len(Alphabet))
	maxWidth = 10 // 62^10 still fits in int64
)

// digitValues maps an ASCII byte to its base-62 value, -1 when not a digit.
var digitValues = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i := range len(Alphabet) {
		table[Alphabet[i]] = int8(i) //nolint:gosec // i < 62
	}

	return table
}()

// Codec converts between ShortID values and their fixed-width base-62 form.
//
// The zero value is not usable; use Default or NewCodec.
type Codec struct {
	rangeSize    int64
	starterRange int64
	width        int
	maxValue     int64
}

// Default is the codec used by the package-level functions.
var Default = MustNewCodec(RangeSize, StarterRange, Width)

// NewCodec creates a codec with custom address-space parameters.
//
// Parameters:
//   - rangeSize: Slots per shard (> 0)
//   - starterRange: Offset added before encoding (>= 0)
//   - width: Encoded length (1..10)
//
// Returns:
//   - *Codec: The codec
//   - error: types.ErrInvalidArgument when a parameter is out of range or
//     no shard fits in the encodable space
func NewCodec(rangeSize, starterRange int64, width int) (*Codec, error) {
	if rangeSize <= 0 {
		return nil, fmt.Errorf("%w: range size must be positive, got %d", types.ErrInvalidArgument, rangeSize)
	}
	if starterRange < 0 {
		return nil, fmt.Errorf("%w: starter range must be non-negative, got %d", types.ErrInvalidArgument, starterRange)
	}
	if width <= 0 || width > maxWidth {
		return nil, fmt.Errorf("%w: width must be in [1, %d], got %d", types.ErrInvalidArgument, maxWidth, width)
	}

	maxValue := int64(1)
	for range width {
		maxValue *= base
	}
	maxValue--

	if starterRange > maxValue-(rangeSize-1) {
		return nil, fmt.Errorf("%w: width %d cannot hold a single range", types.ErrInvalidArgument, width)
	}

	return &Codec{
		rangeSize:    rangeSize,
		starterRange: starterRange,
		width:        width,
		maxValue:     maxValue,
	}, nil
}

// MustNewCodec is like NewCodec but panics on invalid parameters.
func MustNewCodec(rangeSize, starterRange int64, width int) *Codec {
	c, err := NewCodec(rangeSize, starterRange, width)
	if err != nil {
		panic(err)
	}

	return c
}

// RangeSize returns the number of slots per shard.
func (c *Codec) RangeSize() int64 { return c.rangeSize }

// Width returns the encoded length.
func (c *Codec) Width() int { return c.width }

// MaxRange returns the largest shard range whose every index encodes within Width.
func (c *Codec) MaxRange() types.ShardID {
	return types.ShardID((c.maxValue - c.starterRange - (c.rangeSize - 1)) / c.rangeSize)
}

// Encode returns the fixed-width base-62 form of (rng, index).
//
// Returns:
//   - string: Encoded identifier, always exactly Width characters
//   - error: types.ErrInvalidArgument if rng is negative, index is outside
//     [0, RangeSize), or the value exceeds the fixed width
func (c *Codec) Encode(rng types.ShardID, index int64) (string, error) {
	if rng < 0 {
		return "", fmt.Errorf("%w: negative range %d", types.ErrInvalidArgument, rng)
	}
	if index < 0 || index >= c.rangeSize {
		return "", fmt.Errorf("%w: index %d outside [0, %d)", types.ErrInvalidArgument, index, c.rangeSize)
	}
	if int64(rng) > (c.maxValue-c.starterRange-index)/c.rangeSize {
		return "", fmt.Errorf("%w: range %d exceeds %d-character address space", types.ErrInvalidArgument, rng, c.width)
	}

	value := int64(rng)*c.rangeSize + index + c.starterRange

	buf := make([]byte, c.width)
	for i := c.width - 1; i >= 0; i-- {
		buf[i] = Alphabet[value%base]
		value /= base
	}

	return string(buf), nil
}

// Decode parses a fixed-width base-62 identifier.
//
// Returns:
//   - ShortID: Decoded (range, index)
//   - error: types.ErrInvalidShortID if s has the wrong length, contains a
//     character outside the alphabet, or decodes below the starter offset
func (c *Codec) Decode(s string) (ShortID, error) {
	if len(s) != c.width {
		return ShortID{}, fmt.Errorf("%w: %q must be %d characters", types.ErrInvalidShortID, s, c.width)
	}

	var value int64
	for i := range len(s) {
		d := digitValues[s[i]]
		if d < 0 {
			return ShortID{}, fmt.Errorf("%w: %q contains invalid character %q", types.ErrInvalidShortID, s, s[i])
		}
		value = value*base + int64(d)
	}

	if value < c.starterRange {
		return ShortID{}, fmt.Errorf("%w: %q is below the generated range", types.ErrInvalidShortID, s)
	}

	value -= c.starterRange

	return ShortID{
		Range: types.ShardID(value / c.rangeSize),
		Index: value % c.rangeSize,
	}, nil
}

// IsValid reports whether s has the shape of an encoded identifier.
func (c *Codec) IsValid(s string) bool {
	_, err := c.Decode(s)
	return err == nil
}

// Encode encodes (rng, index) with the Default codec.
func Encode(rng types.ShardID, index int64) (string, error) {
	return Default.Encode(rng, index)
}

// Decode decodes s with the Default codec.
func Decode(s string) (ShortID, error) {
	return Default.Decode(s)
}
