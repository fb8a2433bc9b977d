// Package layout holds the bit-level encoding of a string core's fixed-size
// representation.
//
// A core is three machine words. Medium and large strings use them as
//
//	word 0   address of the heap bytes
//	word 1   size
//	word 2   capacity | category tag
//
// while small strings use the whole region as inline bytes. The byte at the
// highest address (LastByte) is shared by both views: for small strings it
// holds (MaxSmall - size) << shift, for heap strings it is the byte of the
// capacity word that carries the tag. Little-endian targets keep the tag in
// the two most significant bits of that byte, big-endian targets in the two
// least significant bits, so the category can always be read from one byte.
//
// This package is internal to strcore.
package layout
