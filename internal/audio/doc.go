// Package audio decodes input recordings into an in-memory PCM timeline and
// packages sub-ranges of it as upload payloads.
package audio
