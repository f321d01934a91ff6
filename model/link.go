package model

// LinkLib is one library the generated cgo package links against.
type LinkLib struct {
	Name   string // without lib prefix and extension, e.g. "tensorflow-lite"
	Static bool   // static archives live next to the generated sources
}

// ArchiveName is the file name of a static library, e.g. "libtflite_shim.a".
func (l LinkLib) ArchiveName() string { return "lib" + l.Name + ".a" }

// DefaultLinkLibs is the link order the shim needs: the shim before the
// library it calls into, then the C++ runtime and system libraries.
var DefaultLinkLibs = []LinkLib{
	{Name: "tflite_shim", Static: true},
	{Name: "tensorflow-lite", Static: true},
	{Name: "stdc++"},
	{Name: "pthread"},
	{Name: "dl"},
}
