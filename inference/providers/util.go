// Package providers - Utility functions.
package providers

import (
	"fmt"
	"os"
	"runtime"
)

// SharedLibraryEnv names the environment variable that overrides the
// onnxruntime shared library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the onnxruntime shared library for the
// current platform. SharedLibraryEnv takes precedence when set.
//
// Returns:
//   - string: The path to the shared library.
//   - error: If no library is known for this platform.
func GetSharedLibPath() (string, error) {
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		return p, nil
	}
	return sharedLibPathFor(runtime.GOOS, runtime.GOARCH)
}

func sharedLibPathFor(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", fmt.Errorf("no onnxruntime library known for %s/%s", goos, goarch)
}
