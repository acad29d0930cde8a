// Package subtitle parses and emits the two supported textual subtitle
// formats (SRT timed text and ASS styled events) and provides the text
// predicates the pipeline uses to decide which lines are worth translating.
//
// Parsing keeps the verbatim bytes of everything that is not cue text so a
// document whose cues were never modified emits byte-identically. Emission
// does normalize whitespace at the cue boundaries: runs of blank lines
// between cues collapse to one, and the output always ends with a newline.
// Inputs that are irregular in only those respects round-trip semantically
// but not byte-for-byte.
package subtitle
