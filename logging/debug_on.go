//go:build cam_debug

package logging

const debugDefault = true
