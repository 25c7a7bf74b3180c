//go:build llama

package manager

// cgo link directives for the in-process llama runtime. The rpath of $ORIGIN
// lets the loader find libllama.so next to the ttsd binary in ./bin.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
