package state

import (
	"os"
)

// readFileIfExists returns nil, nil if path does not exist, the file's
// contents otherwise, or the underlying error for any other failure.
func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
