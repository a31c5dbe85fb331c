// Package idgen centralises identifier generation.
package idgen
