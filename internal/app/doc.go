// Package app wires a Backend for the backplane binary: it loads
// configuration files, configures logging, adds the built-in features and
// runs the backend until its context ends.
package app
