package probe

import "os"

func removeIfExists(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
