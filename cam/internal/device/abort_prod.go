//go:build !cam_abort_on_error

package device

// abortOnError panics on every driver failure. This method no-ops unless the cam_abort_on_error build
// tag is present
func abortOnError(err error) {
}
