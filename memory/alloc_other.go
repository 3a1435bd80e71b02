//go:build !unix

package memory

func alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func free([]byte) error {
	return nil
}
