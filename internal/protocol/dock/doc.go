// Package dock implements docking commands: the named, length-framed
// messages exchanged with a Newton once the link is up.
//
// Every command on the wire is the 8-byte magic "newtdock", a 4-character
// command name, a 4-byte big-endian payload length, the payload, and zero
// padding to the next 4-byte boundary. The Factory maps names to command
// shapes through a Registry; names it does not know decode as Raw.
package dock
