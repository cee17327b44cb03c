// Package http contains the HTTP handlers for the license authority. Every
// handler under /license and /keys sits behind the signature admission gate;
// the health probe and the metrics endpoint are exempt and mounted without
// it.
package http
