package layout

import (
	"encoding/binary"
	"math/bits"
)

// Category identifies which physical layout a core uses.
type Category uint8

const (
	Small Category = iota
	Medium
	Large
)

func (c Category) String() string {
	switch c {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "invalid"
	}
}

const (
	// WordSize is the width of the size and capacity words.
	WordSize = bits.UintSize / 8
	// Words is the number of words in the representation.
	Words = 3
	// Size is the total size of the representation in bytes.
	Size = Words * WordSize
	// LastByte indexes the byte carrying the category tag.
	LastByte = Size - 1
	// MaxSmall is the longest string stored inline.
	MaxSmall = LastByte
	// MaxMedium is the longest string kept in an exclusively owned buffer.
	MaxMedium = 254

	// MaxCapacity is the largest capacity that leaves the tag bits free.
	MaxCapacity = 1<<(bits.UintSize-2) - 1
)

// Order is the byte order the tag encoding targets.
type Order uint8

const (
	LittleEndian Order = iota
	BigEndian
)

// Native is the byte order of the running machine.
var Native = func() Order {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}()

func (o Order) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// tag byte values as seen in LastByte
const (
	leMedium = 0x80
	leLarge  = 0x40
	leMask   = 0xC0

	beMedium = 0x2
	beLarge  = 0x1
	beMask   = 0x3

	categoryShift = (WordSize - 1) * 8
)

// Mask returns the bits of LastByte that hold the category.
func (o Order) Mask() byte {
	if o == BigEndian {
		return beMask
	}
	return leMask
}

// Tag returns the LastByte bits for cat.
func (o Order) Tag(cat Category) byte {
	switch {
	case cat == Medium && o == BigEndian:
		return beMedium
	case cat == Medium:
		return leMedium
	case cat == Large && o == BigEndian:
		return beLarge
	case cat == Large:
		return leLarge
	default:
		return 0
	}
}

// CategoryOf decodes the category from LastByte.
func (o Order) CategoryOf(last byte) Category {
	switch last & o.Mask() {
	case o.Tag(Medium):
		return Medium
	case o.Tag(Large):
		return Large
	case 0:
		return Small
	default:
		// both bits set never occurs in a valid core
		return Category(0xFF)
	}
}

// PackCapacity merges capacity and cat into one word.
func (o Order) PackCapacity(capacity uint, cat Category) uint {
	if o == BigEndian {
		return capacity<<2 | uint(o.Tag(cat))
	}
	return capacity | uint(o.Tag(cat))<<categoryShift
}

// UnpackCapacity strips the tag bits from a packed capacity word.
func (o Order) UnpackCapacity(word uint) uint {
	if o == BigEndian {
		return word >> 2
	}
	return word &^ (uint(leMask) << categoryShift)
}

// WordCategory reads the category straight from a packed capacity word.
func (o Order) WordCategory(word uint) Category {
	if o == BigEndian {
		return o.CategoryOf(byte(word))
	}
	return o.CategoryOf(byte(word >> categoryShift))
}

func (o Order) smallShift() uint {
	if o == BigEndian {
		return 2
	}
	return 0
}

// PackSmallSize returns LastByte for an inline string of the given size.
// A full inline string stores zero, which doubles as its terminator.
func (o Order) PackSmallSize(size int) byte {
	return byte((MaxSmall - size) << o.smallShift())
}

// UnpackSmallSize recovers the inline size from LastByte.
func (o Order) UnpackSmallSize(last byte) int {
	return MaxSmall - int(last>>o.smallShift())
}
