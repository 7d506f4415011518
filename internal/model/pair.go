// Package model defines the domain types shared by the aconv pipeline.
package model

// FilePair is one unit of work: a source file and the destination it produces.
type FilePair struct {
	Source      string
	Destination string
}
