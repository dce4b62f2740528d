//go:build !unix

package filestore

import "os"

// Without flock(2) only the in-process lock applies.
func tryLockFile(*os.File) (bool, error) { return true, nil }

func unlockFile(*os.File) {}
