// Command libdatacloak exports the PII engine as a C shared library:
//
//	go build -buildmode=c-shared -o libdatacloak.so ./cmd/libdatacloak
//
// Every char* returned by this library is allocated with malloc and must be
// released exactly once with datacloak_free_string. Failures of any kind
// are reported as NULL (or a zero handle); the Go API in internal/ffi keeps
// the underlying error.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/raaihank/datacloak/internal/ffi"
	"github.com/raaihank/datacloak/internal/privacy"
)

var registry = ffi.NewRegistry(nil)

//export datacloak_create
func datacloak_create() C.uintptr_t {
	h, err := registry.Create(privacy.DefaultEngineConfig())
	if err != nil {
		return 0
	}
	return C.uintptr_t(h)
}

//export datacloak_create_with_config
func datacloak_create_with_config(config *C.char) C.uintptr_t {
	if config == nil {
		return 0
	}
	cfg, err := ffi.ParseConfig([]byte(C.GoString(config)))
	if err != nil {
		return 0
	}
	h, err := registry.Create(cfg)
	if err != nil {
		return 0
	}
	return C.uintptr_t(h)
}

//export datacloak_destroy
func datacloak_destroy(engine C.uintptr_t) {
	registry.Destroy(ffi.Handle(engine))
}

//export datacloak_detect_pii
func datacloak_detect_pii(engine C.uintptr_t, text *C.char) *C.char {
	if text == nil {
		return nil
	}
	out, err := registry.DetectPII(ffi.Handle(engine), C.GoString(text))
	if err != nil {
		return nil
	}
	return C.CString(string(out))
}

//export datacloak_mask_text
func datacloak_mask_text(engine C.uintptr_t, text *C.char) *C.char {
	if text == nil {
		return nil
	}
	out, err := registry.MaskText(ffi.Handle(engine), C.GoString(text))
	if err != nil {
		return nil
	}
	return C.CString(string(out))
}

//export datacloak_free_string
func datacloak_free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export datacloak_version
func datacloak_version() *C.char {
	return C.CString(ffi.Version)
}

func main() {}
