// Package record defines the on-disk record model shared by content
// records and relations: a structured YAML header plus an optional
// free-text body, and type-prefixed unique IDs.
package record
