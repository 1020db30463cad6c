// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary run loop that wires the
// service bridge, the session and the preset store together, decoupled
// from any specific entrypoint like a CLI.
package app
