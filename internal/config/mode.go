package config

// Mode represents the operational mode of the binary
type Mode string

const (
	// ModeRelay accepts clients and forwards each message to the master
	ModeRelay Mode = "relay"

	// ModeEcho runs the synchronous echo master
	ModeEcho Mode = "echo"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeRelay || m == ModeEcho
}

// String returns the string representation
func (m Mode) String() string {
	return string(m)
}
