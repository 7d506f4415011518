//go:build !unix

package fsx

import (
	"errors"
	"os"
	"syscall"
)

func isEXDEV(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// CheckWritable reports whether dir exists. Permission checks are left to the
// first write on platforms without access(2).
func CheckWritable(dir string) error {
	_, err := os.Stat(dir)
	return err
}
