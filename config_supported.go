//go:build amd64

package armature

// NativeSupported is true when WithNativeBackend can generate code for
// runtime.GOARCH.
const NativeSupported = true
