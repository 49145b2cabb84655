package util

import "os"

func OpenFIFO(path string) (*os.File, error) {
	return os.Open(path)
}
