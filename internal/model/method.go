package model

// Method is one candidate extraction technique under comparison. Methods are
// immutable for the lifetime of a study: loaded once from the manifest, never
// edited through the API.
type Method struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	File string `json:"file,omitempty" yaml:"file"`
}
