package ports

// ConfigParser decodes a configuration document into a struct.
type ConfigParser interface {
	// Parse unmarshals raw bytes into out, which must be a pointer.
	Parse(data []byte, out any) error
}
