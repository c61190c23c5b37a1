// Package main hosts the sweetexp CLI.
//
// `sweetexp run` starts the achievement engine in the foreground. The other
// commands inspect or poke a running engine over its control socket, fall
// back to reading the data file directly when no engine is up, or act as a
// notification consumer for local testing.
package main
